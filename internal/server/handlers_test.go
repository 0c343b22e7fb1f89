package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/config"
	"github.com/hyperjump/bekutoru/internal/embedding"
	"github.com/hyperjump/bekutoru/internal/models"
	"github.com/hyperjump/bekutoru/internal/service"
	"github.com/hyperjump/bekutoru/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Provider = "mock"
	svc := service.New(store.NewMemoryStore(), embedding.NewMockEmbedder(32), zap.NewNop(), service.Config{})
	srv := NewServer(svc, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func createTestLibrary(t *testing.T, ts *httptest.Server, kind string) *models.LibraryResponse {
	t.Helper()
	var lib models.LibraryResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/libraries", models.LibraryCreateRequest{
		Name:      "docs",
		IndexKind: kind,
	}, &lib)
	if status != http.StatusCreated {
		t.Fatalf("create library status = %d", status)
	}
	return &lib
}

func TestHandleCreateAndGetLibrary(t *testing.T) {
	ts := newTestServer(t)
	lib := createTestLibrary(t, ts, "linear")

	var got models.LibraryResponse
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/libraries/"+lib.ID.String(), nil, &got)
	if status != http.StatusOK {
		t.Fatalf("get library status = %d", status)
	}
	if got.Name != "docs" || got.IndexKind != "linear" {
		t.Errorf("unexpected library: %+v", got)
	}
}

func TestHandleCreateLibraryValidation(t *testing.T) {
	ts := newTestServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/libraries",
		models.LibraryCreateRequest{Name: ""}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", status)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/libraries",
		models.LibraryCreateRequest{Name: "x", IndexKind: "btree"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad index kind status = %d, want 400", status)
	}
}

func TestHandleGetLibraryNotFound(t *testing.T) {
	ts := newTestServer(t)
	status := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/libraries/00000000-0000-0000-0000-000000000001", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}

	status = doJSON(t, http.MethodGet, ts.URL+"/api/v1/libraries/not-a-uuid", nil, nil)
	if status != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", status)
	}
}

func TestHandleChunkLifecycle(t *testing.T) {
	ts := newTestServer(t)
	lib := createTestLibrary(t, ts, "linear")
	base := ts.URL + "/api/v1/libraries/" + lib.ID.String()

	var chunk models.ChunkResponse
	status := doJSON(t, http.MethodPost, base+"/chunks", models.ChunkCreateRequest{
		Text:     "hello world",
		Metadata: map[string]any{"topic": "greetings"},
	}, &chunk)
	if status != http.StatusCreated {
		t.Fatalf("create chunk status = %d", status)
	}
	if chunk.DocumentID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("chunk should have an auto-created document")
	}

	var got models.ChunkResponse
	status = doJSON(t, http.MethodGet, base+"/chunks/"+chunk.ID.String(), nil, &got)
	if status != http.StatusOK || got.Text != "hello world" {
		t.Errorf("get chunk = %d, %+v", status, got)
	}

	status = doJSON(t, http.MethodPatch, base+"/chunks/"+chunk.ID.String(),
		models.ChunkUpdateRequest{Metadata: map[string]any{"topic": "other"}}, &got)
	if status != http.StatusOK || got.Metadata["topic"] != "other" {
		t.Errorf("update chunk = %d, %+v", status, got)
	}

	status = doJSON(t, http.MethodPatch, base+"/chunks/"+chunk.ID.String(),
		models.ChunkUpdateRequest{}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", status)
	}

	status = doJSON(t, http.MethodDelete, base+"/chunks/"+chunk.ID.String(), nil, nil)
	if status != http.StatusOK {
		t.Errorf("delete chunk status = %d", status)
	}
	// Idempotent delete.
	status = doJSON(t, http.MethodDelete, base+"/chunks/"+chunk.ID.String(), nil, nil)
	if status != http.StatusOK {
		t.Errorf("second delete status = %d, want 200", status)
	}
}

func TestHandleBuildAndSearch(t *testing.T) {
	ts := newTestServer(t)
	lib := createTestLibrary(t, ts, "ivf")
	base := ts.URL + "/api/v1/libraries/" + lib.ID.String()

	for i := 0; i < 20; i++ {
		status := doJSON(t, http.MethodPost, base+"/chunks", models.ChunkCreateRequest{
			Text: fmt.Sprintf("paragraph %d", i),
		}, nil)
		if status != http.StatusCreated {
			t.Fatalf("create chunk %d status = %d", i, status)
		}
	}

	var build models.BuildResponse
	status := doJSON(t, http.MethodPost, base+"/index", nil, &build)
	if status != http.StatusOK {
		t.Fatalf("build status = %d", status)
	}
	if build.LibraryID != lib.ID || build.LastBuiltAt.IsZero() {
		t.Errorf("unexpected build response: %+v", build)
	}

	var resp models.SearchResponse
	status = doJSON(t, http.MethodPost, base+"/search", models.SearchRequest{
		Query: "paragraph 3",
		K:     5,
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("search status = %d", status)
	}
	if len(resp.Results) != 5 {
		t.Fatalf("got %d results, want 5", len(resp.Results))
	}
	if resp.Results[0].Chunk.Text != "paragraph 3" {
		t.Errorf("top result = %q, want exact match", resp.Results[0].Chunk.Text)
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i-1].Score < resp.Results[i].Score {
			t.Error("results not ordered by score descending")
		}
	}
}

func TestHandleSearchValidation(t *testing.T) {
	ts := newTestServer(t)
	lib := createTestLibrary(t, ts, "linear")
	base := ts.URL + "/api/v1/libraries/" + lib.ID.String()

	status := doJSON(t, http.MethodPost, base+"/search", models.SearchRequest{Query: "x", K: 0}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("k=0 status = %d, want 400", status)
	}

	status = doJSON(t, http.MethodPost, base+"/search", models.SearchRequest{
		Query:   "x",
		K:       1,
		Filters: map[string]any{"f": map[string]any{"matches": "x"}},
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", status)
	}
}

func TestHandleDocumentCascade(t *testing.T) {
	ts := newTestServer(t)
	lib := createTestLibrary(t, ts, "linear")
	base := ts.URL + "/api/v1/libraries/" + lib.ID.String()

	var doc models.DocumentResponse
	status := doJSON(t, http.MethodPost, base+"/documents", models.DocumentCreateRequest{}, &doc)
	if status != http.StatusCreated {
		t.Fatalf("create document status = %d", status)
	}

	for i := 0; i < 3; i++ {
		docID := doc.ID
		status := doJSON(t, http.MethodPost, base+"/chunks", models.ChunkCreateRequest{
			Text:       fmt.Sprintf("chunk %d", i),
			DocumentID: &docID,
		}, nil)
		if status != http.StatusCreated {
			t.Fatalf("create chunk status = %d", status)
		}
	}

	status = doJSON(t, http.MethodDelete, base+"/documents/"+doc.ID.String(), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("delete document status = %d", status)
	}

	var resp models.SearchResponse
	status = doJSON(t, http.MethodPost, base+"/search", models.SearchRequest{Query: "chunk 0", K: 5}, &resp)
	if status != http.StatusOK {
		t.Fatalf("search status = %d", status)
	}
	if len(resp.Results) != 0 {
		t.Errorf("search after cascade returned %d results, want 0", len(resp.Results))
	}
}

func TestHandleHealthAndStatus(t *testing.T) {
	ts := newTestServer(t)
	var health map[string]string
	if status := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &health); status != http.StatusOK {
		t.Errorf("health status = %d", status)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	createTestLibrary(t, ts, "linear")
	var out map[string]any
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/status", nil, &out); status != http.StatusOK {
		t.Errorf("status endpoint = %d", status)
	}
	if out["libraries"] != float64(1) {
		t.Errorf("libraries count = %v, want 1", out["libraries"])
	}
}
