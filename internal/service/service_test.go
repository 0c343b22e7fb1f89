package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/embedding"
	"github.com/hyperjump/bekutoru/internal/models"
	"github.com/hyperjump/bekutoru/internal/store"
)

// swappableEmbedder lets tests replace the embedder mid-flight, e.g. to
// simulate a provider that suddenly returns a different dimension.
type swappableEmbedder struct {
	mu    sync.Mutex
	inner embedding.Embedder
}

func (s *swappableEmbedder) current() embedding.Embedder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner
}

func (s *swappableEmbedder) swap(e embedding.Embedder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = e
}

func (s *swappableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.current().Embed(ctx, text)
}

func (s *swappableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.current().EmbedBatch(ctx, texts)
}

func (s *swappableEmbedder) Dimensions() int { return s.current().Dimensions() }
func (s *swappableEmbedder) Close() error    { return s.current().Close() }

func newTestService(t *testing.T) (*Service, *swappableEmbedder) {
	t.Helper()
	emb := &swappableEmbedder{inner: embedding.NewMockEmbedder(32)}
	svc := New(store.NewMemoryStore(), emb, zap.NewNop(), Config{})
	return svc, emb
}

func createLibrary(t *testing.T, svc *Service, kind string, params map[string]any) *models.Library {
	t.Helper()
	lib, err := svc.CreateLibrary(context.Background(), "test-library", kind, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func addChunk(t *testing.T, svc *Service, libID uuid.UUID, text string, meta map[string]any) *models.Chunk {
	t.Helper()
	chunk, err := svc.CreateChunk(context.Background(), libID, &models.ChunkCreateRequest{
		Text:     text,
		Metadata: meta,
	})
	if err != nil {
		t.Fatal(err)
	}
	return chunk
}

func search(t *testing.T, svc *Service, libID uuid.UUID, query string, k int, filters map[string]any) *models.SearchResponse {
	t.Helper()
	resp, err := svc.Search(context.Background(), libID, &models.SearchRequest{
		Query:   query,
		K:       k,
		Filters: filters,
	})
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAutoDocument(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)

	chunk := addChunk(t, svc, lib.ID, "alpha", nil)
	if chunk.DocumentID == uuid.Nil {
		t.Fatal("chunk should have an auto-created parent document")
	}

	got, err := svc.GetLibrary(ctx, lib.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Documents) != 1 {
		t.Fatalf("library has %d documents, want 1", len(got.Documents))
	}
	if _, ok := got.Documents[chunk.DocumentID]; !ok {
		t.Error("auto-created document missing from library")
	}

	doc, err := svc.GetDocument(ctx, lib.ID, chunk.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("document has %d chunks, want 1", len(doc.Chunks))
	}
	if _, ok := doc.Chunks[chunk.ID]; !ok {
		t.Error("chunk missing from document child set")
	}
}

func TestIVFLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "ivf", map[string]any{"n_clusters": 3, "n_probes": 2})

	for i := 0; i < 30; i++ {
		addChunk(t, svc, lib.ID, fmt.Sprintf("chunk number %d", i), nil)
	}

	// Before build the buffer is scanned linearly.
	pre := search(t, svc, lib.ID, "chunk number 7", 5, nil)
	if len(pre.Results) != 5 {
		t.Fatalf("pre-build search returned %d results, want 5", len(pre.Results))
	}
	if pre.Results[0].Chunk.Text != "chunk number 7" {
		t.Errorf("pre-build top-1 = %q, want the exact-match chunk", pre.Results[0].Chunk.Text)
	}

	resp, err := svc.BuildIndex(ctx, lib.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resp.LastBuiltAt.IsZero() {
		t.Error("LastBuiltAt should be stamped")
	}

	post := search(t, svc, lib.ID, "chunk number 7", 5, nil)
	if len(post.Results) < 5 {
		t.Fatalf("post-build search returned %d results, want at least 5", len(post.Results))
	}
	if post.Results[0].ChunkID != pre.Results[0].ChunkID {
		t.Errorf("post-build top-1 = %s, want pre-build top-1 %s",
			post.Results[0].ChunkID, pre.Results[0].ChunkID)
	}
}

func TestFilterOverfetch(t *testing.T) {
	svc, _ := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)

	for i := 0; i < 100; i++ {
		meta := map[string]any{"topic": "b"}
		if i%20 == 0 {
			meta = map[string]any{"topic": "a"}
		}
		addChunk(t, svc, lib.ID, fmt.Sprintf("text %d", i), meta)
	}

	resp := search(t, svc, lib.ID, "text 50", 5, map[string]any{"topic": "a"})
	if len(resp.Results) != 5 {
		t.Fatalf("got %d results, want exactly 5", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Chunk.Metadata["topic"] != "a" {
			t.Errorf("result %d has topic %v, want a", i, r.Chunk.Metadata["topic"])
		}
		if i > 0 && resp.Results[i-1].Score < r.Score {
			t.Error("results not ordered by score descending")
		}
	}
}

func TestNSWIncrementalScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "nsw", nil)

	var first *models.Chunk
	for i := 0; i < 200; i++ {
		chunk := addChunk(t, svc, lib.ID, fmt.Sprintf("passage %d", i), nil)
		if first == nil {
			first = chunk
		}
		if i%10 == 9 {
			k := 5
			resp := search(t, svc, lib.ID, "passage 3", k, nil)
			if len(resp.Results) != k {
				t.Fatalf("search at insert %d returned %d results, want %d", i+1, len(resp.Results), k)
			}
		}
	}

	// The first insert is the graph entry point; the index must survive
	// losing it.
	if err := svc.DeleteChunk(ctx, lib.ID, first.ID); err != nil {
		t.Fatal(err)
	}
	resp := search(t, svc, lib.ID, "passage 3", 10, nil)
	if len(resp.Results) != 10 {
		t.Fatalf("search after entry point delete returned %d results, want 10", len(resp.Results))
	}
}

func TestDimensionLock(t *testing.T) {
	svc, emb := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)

	first := addChunk(t, svc, lib.ID, "alpha", nil)

	// The provider starts returning a different dimension.
	emb.swap(embedding.NewMockEmbedder(16))
	_, err := svc.CreateChunk(context.Background(), lib.ID, &models.ChunkCreateRequest{Text: "beta"})
	if apperr.KindOf(err) != apperr.KindDimensionMismatch {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}

	// Library unchanged: the first chunk is still searchable.
	emb.swap(embedding.NewMockEmbedder(32))
	resp := search(t, svc, lib.ID, "alpha", 10, nil)
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != first.ID {
		t.Errorf("library state changed after failed insert: %v", resp.Results)
	}
}

func TestCascadeDeleteDocument(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)

	doc, err := svc.CreateDocument(ctx, lib.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_, err := svc.CreateChunk(ctx, lib.ID, &models.ChunkCreateRequest{
			Text:       fmt.Sprintf("chunk %d", i),
			DocumentID: &doc.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.DeleteDocument(ctx, lib.ID, doc.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetDocument(ctx, lib.ID, doc.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("document should be gone, got %v", err)
	}
	got, err := svc.GetLibrary(ctx, lib.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Documents) != 0 {
		t.Errorf("library still lists %d documents", len(got.Documents))
	}
	resp := search(t, svc, lib.ID, "chunk 0", 5, nil)
	if len(resp.Results) != 0 {
		t.Errorf("search after cascade returned %d results, want 0", len(resp.Results))
	}
}

func TestStoredVectorsAreUnitNorm(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)
	for i := 0; i < 10; i++ {
		addChunk(t, svc, lib.ID, fmt.Sprintf("text %d", i), nil)
	}
	chunks, err := svc.store.ListChunksByLibrary(ctx, lib.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		var sum float64
		for _, v := range c.Embedding {
			sum += float64(v * v)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("chunk %s has norm %v", c.ID, math.Sqrt(sum))
		}
	}
}

func TestAddThenRemoveRestoresState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)
	for i := 0; i < 5; i++ {
		addChunk(t, svc, lib.ID, fmt.Sprintf("base %d", i), nil)
	}

	before := search(t, svc, lib.ID, "base 2", 5, nil)

	extra := addChunk(t, svc, lib.ID, "temporary", nil)
	if err := svc.DeleteChunk(ctx, lib.ID, extra.ID); err != nil {
		t.Fatal(err)
	}
	// Deletes are idempotent.
	if err := svc.DeleteChunk(ctx, lib.ID, extra.ID); err != nil {
		t.Fatal(err)
	}

	after := search(t, svc, lib.ID, "base 2", 5, nil)
	if len(before.Results) != len(after.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(before.Results), len(after.Results))
	}
	for i := range before.Results {
		if before.Results[i].ChunkID != after.Results[i].ChunkID {
			t.Errorf("result %d differs after add+remove", i)
		}
	}
}

func TestUpdateWithIdenticalContentIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "nsw", nil)
	var target *models.Chunk
	for i := 0; i < 10; i++ {
		c := addChunk(t, svc, lib.ID, fmt.Sprintf("stable %d", i), nil)
		if i == 4 {
			target = c
		}
	}

	before := search(t, svc, lib.ID, "stable 4", 5, nil)
	text := "stable 4"
	if _, err := svc.UpdateChunk(ctx, lib.ID, target.ID, &models.ChunkUpdateRequest{Text: &text}); err != nil {
		t.Fatal(err)
	}
	after := search(t, svc, lib.ID, "stable 4", 5, nil)

	for i := range before.Results {
		if before.Results[i].ChunkID != after.Results[i].ChunkID {
			t.Errorf("identical-content update changed result %d", i)
		}
	}
}

func TestUpdateChunkReembedsOnTextChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)
	chunk := addChunk(t, svc, lib.ID, "original text", nil)
	addChunk(t, svc, lib.ID, "other content entirely", nil)

	text := "completely different words"
	updated, err := svc.UpdateChunk(ctx, lib.ID, chunk.ID, &models.ChunkUpdateRequest{Text: &text})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Text != text {
		t.Errorf("Text = %q, want %q", updated.Text, text)
	}

	resp := search(t, svc, lib.ID, "completely different words", 1, nil)
	if resp.Results[0].ChunkID != chunk.ID {
		t.Error("updated chunk should rank first for its new text")
	}
	if resp.Results[0].Score < 0.999 {
		t.Errorf("exact-match score = %v, want ~1", resp.Results[0].Score)
	}
}

func TestUpdateChunkEmptyPatch(t *testing.T) {
	svc, _ := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)
	chunk := addChunk(t, svc, lib.ID, "alpha", nil)
	_, err := svc.UpdateChunk(context.Background(), lib.ID, chunk.ID, &models.ChunkUpdateRequest{})
	if apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("expected InvalidRequest for empty patch, got %v", err)
	}
}

func TestMetadataSnapshotRefreshesOnUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)
	chunk := addChunk(t, svc, lib.ID, "tagged", map[string]any{"topic": "old"})

	if _, err := svc.UpdateChunk(ctx, lib.ID, chunk.ID, &models.ChunkUpdateRequest{
		Metadata: map[string]any{"topic": "new"},
	}); err != nil {
		t.Fatal(err)
	}

	if resp := search(t, svc, lib.ID, "tagged", 1, map[string]any{"topic": "old"}); len(resp.Results) != 0 {
		t.Error("stale snapshot still matches old metadata")
	}
	if resp := search(t, svc, lib.ID, "tagged", 1, map[string]any{"topic": "new"}); len(resp.Results) != 1 {
		t.Error("refreshed snapshot should match new metadata")
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _ := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)
	ctx := context.Background()

	if _, err := svc.Search(ctx, lib.ID, &models.SearchRequest{Query: "x", K: 0}); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("k=0 should be InvalidRequest, got %v", err)
	}
	if _, err := svc.Search(ctx, lib.ID, &models.SearchRequest{Query: "", K: 1}); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("empty query should be InvalidRequest, got %v", err)
	}
	if _, err := svc.Search(ctx, uuid.New(), &models.SearchRequest{Query: "x", K: 1}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown library should be NotFound, got %v", err)
	}
	badFilter := map[string]any{"f": map[string]any{"matches": "x"}}
	if _, err := svc.Search(ctx, lib.ID, &models.SearchRequest{Query: "x", K: 1, Filters: badFilter}); apperr.KindOf(err) != apperr.KindInvalidFilter {
		t.Errorf("bad filter should be InvalidFilter, got %v", err)
	}
}

func TestSearchKExceedsSize(t *testing.T) {
	svc, _ := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)
	for i := 0; i < 3; i++ {
		addChunk(t, svc, lib.ID, fmt.Sprintf("doc %d", i), nil)
	}
	resp := search(t, svc, lib.ID, "doc 0", 10, nil)
	if len(resp.Results) != 3 {
		t.Errorf("k>n search returned %d results, want 3", len(resp.Results))
	}
}

func TestDeleteLibraryCascades(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lib := createLibrary(t, svc, "linear", nil)
	chunk := addChunk(t, svc, lib.ID, "alpha", nil)

	if err := svc.DeleteLibrary(ctx, lib.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetLibrary(ctx, lib.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("library should be gone, got %v", err)
	}
	if _, err := svc.store.GetChunk(ctx, chunk.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("chunk should be gone, got %v", err)
	}
	if _, err := svc.Search(ctx, lib.ID, &models.SearchRequest{Query: "alpha", K: 1}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("search on deleted library should be NotFound, got %v", err)
	}
	// Idempotent.
	if err := svc.DeleteLibrary(ctx, lib.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestLibrariesAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	libA := createLibrary(t, svc, "linear", nil)
	libB := createLibrary(t, svc, "nsw", nil)

	addChunk(t, svc, libA.ID, "only in a", nil)
	addChunk(t, svc, libB.ID, "only in b", nil)

	respA := search(t, svc, libA.ID, "only in a", 10, nil)
	if len(respA.Results) != 1 || respA.Results[0].Chunk.Text != "only in a" {
		t.Errorf("library A sees foreign chunks: %v", respA.Results)
	}
}

func TestConcurrentOperations(t *testing.T) {
	svc, _ := newTestService(t)
	lib := createLibrary(t, svc, "linear", nil)
	ctx := context.Background()

	// Seed so concurrent searches always have something to find.
	for i := 0; i < 10; i++ {
		addChunk(t, svc, lib.ID, fmt.Sprintf("seed %d", i), nil)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := svc.CreateChunk(ctx, lib.ID, &models.ChunkCreateRequest{
					Text: fmt.Sprintf("worker %d chunk %d", w, i),
				})
				if err != nil {
					t.Errorf("concurrent create: %v", err)
					return
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				resp, err := svc.Search(ctx, lib.ID, &models.SearchRequest{Query: "seed 1", K: 5})
				if err != nil {
					t.Errorf("concurrent search: %v", err)
					return
				}
				if len(resp.Results) != 5 {
					t.Errorf("concurrent search returned %d results", len(resp.Results))
					return
				}
			}
		}()
	}
	wg.Wait()

	resp := search(t, svc, lib.ID, "seed 1", 10, nil)
	if len(resp.Results) != 10 {
		t.Errorf("post-concurrency search returned %d results", len(resp.Results))
	}
}
