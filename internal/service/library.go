package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/index"
	"github.com/hyperjump/bekutoru/internal/models"
)

// CreateLibrary creates a library and its index. Names are free-form labels,
// not unique.
func (s *Service) CreateLibrary(ctx context.Context, name, kind string, params, metadata map[string]any) (*models.Library, error) {
	if name == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "library name is required")
	}
	indexKind, err := models.ParseIndexKind(kind)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "invalid index kind")
	}
	idx, err := index.New(indexKind, params, s.logger)
	if err != nil {
		return nil, err
	}

	lib := &models.Library{
		ID:          uuid.New(),
		Name:        name,
		IndexKind:   indexKind,
		IndexParams: models.CloneMetadata(params),
		Documents:   make(map[uuid.UUID]struct{}),
		Metadata:    models.CloneMetadata(metadata),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveLibrary(ctx, lib); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.libs[lib.ID] = &libraryState{index: idx}
	s.mu.Unlock()

	s.logger.Info("library created",
		zap.String("library_id", lib.ID.String()),
		zap.String("index_kind", string(indexKind)))
	return lib, nil
}

// GetLibrary returns a library by id.
func (s *Service) GetLibrary(ctx context.Context, id uuid.UUID) (*models.Library, error) {
	return s.store.GetLibrary(ctx, id)
}

// ListLibraries returns all libraries.
func (s *Service) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	return s.store.ListLibraries(ctx)
}

// UpdateLibrary patches a library's name and/or metadata. An empty patch is
// an invalid request.
func (s *Service) UpdateLibrary(ctx context.Context, id uuid.UUID, name *string, metadata map[string]any) (*models.Library, error) {
	if name == nil && metadata == nil {
		return nil, apperr.New(apperr.KindInvalidRequest, "at least one of name or metadata must be provided")
	}
	lib, err := s.store.GetLibrary(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		lib.Name = *name
	}
	if metadata != nil {
		lib.Metadata = models.CloneMetadata(metadata)
	}
	if err := s.store.UpdateLibrary(ctx, lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// DeleteLibrary destroys a library, its index, and all dependent documents
// and chunks. Unknown ids are idempotent no-ops.
func (s *Service) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	lib, err := s.store.GetLibrary(ctx, id)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	st, ok := s.libs[id]
	delete(s.libs, id)
	s.mu.Unlock()
	if ok {
		// Wait out in-flight operations before tearing down.
		st.mu.Lock()
		defer st.mu.Unlock()
	}

	for docID := range lib.Documents {
		doc, err := s.store.GetDocument(ctx, docID)
		if err != nil {
			continue
		}
		for chunkID := range doc.Chunks {
			if err := s.store.DeleteChunk(ctx, chunkID); err != nil {
				return err
			}
		}
		if err := s.store.DeleteDocument(ctx, docID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteLibrary(ctx, id); err != nil {
		return err
	}
	s.logger.Info("library deleted", zap.String("library_id", id.String()))
	return nil
}
