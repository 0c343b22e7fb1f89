package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/models"
	"github.com/hyperjump/bekutoru/internal/vector"
)

// CreateChunk embeds and inserts a chunk. When req.DocumentID is nil a new
// document is created with req.DocumentMetadata. The first successful insert
// fixes the library's vector dimension.
//
// The embedding call happens before the library write lock is taken, so a
// slow embedder never blocks readers; an embedding failure leaves the
// library unchanged.
func (s *Service) CreateChunk(ctx context.Context, libraryID uuid.UUID, req *models.ChunkCreateRequest) (*models.Chunk, error) {
	if req.Text == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "chunk text is required")
	}
	st, err := s.state(libraryID)
	if err != nil {
		return nil, err
	}
	if req.DocumentID != nil {
		if _, err := s.GetDocument(ctx, libraryID, *req.DocumentID); err != nil {
			return nil, err
		}
	}

	vec, err := s.embedText(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if dim := st.index.Dimension(); dim > 0 && dim != len(vec) {
		return nil, apperr.New(apperr.KindDimensionMismatch,
			"embedding dimension %d does not match library dimension %d", len(vec), dim)
	}

	docID, err := s.resolveDocument(ctx, libraryID, req)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	chunk := &models.Chunk{
		ID:         uuid.New(),
		DocumentID: docID,
		LibraryID:  libraryID,
		Text:       req.Text,
		Metadata:   models.CloneMetadata(req.Metadata),
		Embedding:  vec,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveChunk(ctx, chunk); err != nil {
		return nil, err
	}
	doc.Chunks[chunk.ID] = struct{}{}
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	st.index.Add(chunk.ID, vec, chunk.Metadata)
	s.logger.Debug("chunk created",
		zap.String("library_id", libraryID.String()),
		zap.String("chunk_id", chunk.ID.String()))
	return chunk, nil
}

// GetChunk returns a chunk, checking it belongs to the library.
func (s *Service) GetChunk(ctx context.Context, libraryID, chunkID uuid.UUID) (*models.Chunk, error) {
	chunk, err := s.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk.LibraryID != libraryID {
		return nil, apperr.New(apperr.KindNotFound, "chunk %s not found in library %s", chunkID, libraryID)
	}
	return chunk, nil
}

// UpdateChunk patches a chunk's text and/or metadata. A text change
// re-embeds and re-links the index entry; an unchanged text is a no-op on
// the index topology.
func (s *Service) UpdateChunk(ctx context.Context, libraryID, chunkID uuid.UUID, req *models.ChunkUpdateRequest) (*models.Chunk, error) {
	if req.Text == nil && req.Metadata == nil {
		return nil, apperr.New(apperr.KindInvalidRequest, "at least one of text or metadata must be provided")
	}
	if req.Text != nil && *req.Text == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "chunk text cannot be empty")
	}
	st, err := s.state(libraryID)
	if err != nil {
		return nil, err
	}
	// Pre-lock read only decides whether a re-embed is needed; the write
	// below re-fetches under the lock so it never clobbers a concurrent
	// update with this stale snapshot.
	observed, err := s.GetChunk(ctx, libraryID, chunkID)
	if err != nil {
		return nil, err
	}

	var vec []float32
	if req.Text != nil && *req.Text != observed.Text {
		if vec, err = s.embedText(ctx, *req.Text); err != nil {
			return nil, err
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	chunk, err := s.GetChunk(ctx, libraryID, chunkID)
	if err != nil {
		return nil, err
	}
	if req.Text != nil && vec == nil && *req.Text != chunk.Text {
		// A concurrent writer changed the text after the pre-lock read.
		// The observed snapshot's text equals req.Text, so its embedding
		// is the embedding of the requested text.
		vec = observed.Embedding
	}

	if vec != nil {
		if dim := st.index.Dimension(); dim > 0 && dim != len(vec) {
			return nil, apperr.New(apperr.KindDimensionMismatch,
				"embedding dimension %d does not match library dimension %d", len(vec), dim)
		}
		chunk.Text = *req.Text
		chunk.Embedding = vec
	}
	if req.Metadata != nil {
		chunk.Metadata = models.CloneMetadata(req.Metadata)
	}
	if err := s.store.UpdateChunk(ctx, chunk); err != nil {
		return nil, err
	}
	st.index.Update(chunkID, vec, req.Metadata)
	return chunk, nil
}

// DeleteChunk removes a chunk from the index, the store, and its parent
// document. Unknown ids are idempotent no-ops.
func (s *Service) DeleteChunk(ctx context.Context, libraryID, chunkID uuid.UUID) error {
	chunk, err := s.GetChunk(ctx, libraryID, chunkID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	st, err := s.state(libraryID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.index.Remove(chunkID)
	if err := s.store.DeleteChunk(ctx, chunkID); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, chunk.DocumentID)
	if err == nil {
		delete(doc.Chunks, chunkID)
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// BuildIndex consolidates a library's index and stamps last_built_at.
func (s *Service) BuildIndex(ctx context.Context, libraryID uuid.UUID) (*models.BuildResponse, error) {
	st, err := s.state(libraryID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	if err := st.index.Build(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "index build failed")
	}
	st.lastBuiltAt = time.Now().UTC()
	s.logger.Info("index built",
		zap.String("library_id", libraryID.String()),
		zap.Int("size", st.index.Size()),
		zap.Duration("took", time.Since(start)))
	return &models.BuildResponse{
		LibraryID:   libraryID,
		Message:     "index built successfully",
		LastBuiltAt: st.lastBuiltAt,
	}, nil
}

// resolveDocument returns the target document id, creating a document when
// the request does not name one. Caller holds the library write lock.
func (s *Service) resolveDocument(ctx context.Context, libraryID uuid.UUID, req *models.ChunkCreateRequest) (uuid.UUID, error) {
	if req.DocumentID != nil {
		return *req.DocumentID, nil
	}
	doc := &models.Document{
		ID:        uuid.New(),
		LibraryID: libraryID,
		Chunks:    make(map[uuid.UUID]struct{}),
		Metadata:  models.CloneMetadata(req.DocumentMetadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return uuid.Nil, err
	}
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return uuid.Nil, err
	}
	lib.Documents[doc.ID] = struct{}{}
	if err := s.store.UpdateLibrary(ctx, lib); err != nil {
		return uuid.Nil, err
	}
	return doc.ID, nil
}

// embedText embeds and unit-normalizes text. Embedder errors surface as
// EmbeddingFailure, degenerate vectors as InvalidVector.
func (s *Service) embedText(ctx context.Context, text string) ([]float32, error) {
	raw, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindEmbeddingFailure {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindEmbeddingFailure, err, "embedding failed")
	}
	return vector.Normalize(raw)
}
