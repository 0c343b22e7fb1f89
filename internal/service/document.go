package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/models"
)

// CreateDocument creates an empty document under a library.
func (s *Service) CreateDocument(ctx context.Context, libraryID uuid.UUID, metadata map[string]any) (*models.Document, error) {
	st, err := s.state(libraryID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		ID:        uuid.New(),
		LibraryID: libraryID,
		Chunks:    make(map[uuid.UUID]struct{}),
		Metadata:  models.CloneMetadata(metadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	lib.Documents[doc.ID] = struct{}{}
	if err := s.store.UpdateLibrary(ctx, lib); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns a document, checking it belongs to the library.
func (s *Service) GetDocument(ctx context.Context, libraryID, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.LibraryID != libraryID {
		return nil, apperr.New(apperr.KindNotFound, "document %s not found in library %s", documentID, libraryID)
	}
	return doc, nil
}

// UpdateDocumentMetadata replaces a document's metadata.
func (s *Service) UpdateDocumentMetadata(ctx context.Context, libraryID, documentID uuid.UUID, metadata map[string]any) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, libraryID, documentID)
	if err != nil {
		return nil, err
	}
	doc.Metadata = models.CloneMetadata(metadata)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument destroys a document and its chunks. Unknown ids are
// idempotent no-ops.
func (s *Service) DeleteDocument(ctx context.Context, libraryID, documentID uuid.UUID) error {
	st, err := s.state(libraryID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Fetch the child set under the exclusive lock: a chunk created by a
	// writer that won the lock race would be missed by a pre-lock snapshot
	// and survive the cascade as an orphan.
	doc, err := s.GetDocument(ctx, libraryID, documentID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	for chunkID := range doc.Chunks {
		st.index.Remove(chunkID)
		if err := s.store.DeleteChunk(ctx, chunkID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return err
	}
	delete(lib.Documents, documentID)
	if err := s.store.UpdateLibrary(ctx, lib); err != nil {
		return err
	}
	s.logger.Debug("document deleted",
		zap.String("library_id", libraryID.String()),
		zap.String("document_id", documentID.String()),
		zap.Int("chunks", len(doc.Chunks)))
	return nil
}
