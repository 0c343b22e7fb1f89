package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/models"
)

// MemoryStore keeps all entities in process memory. Each registry has its
// own mutex; critical sections cover only map access. Entities are cloned
// on the way in and out so callers never share state with the registry.
type MemoryStore struct {
	libMu  sync.RWMutex
	libs   map[uuid.UUID]*models.Library
	docMu  sync.RWMutex
	docs   map[uuid.UUID]*models.Document
	chkMu  sync.RWMutex
	chunks map[uuid.UUID]*models.Chunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		libs:   make(map[uuid.UUID]*models.Library),
		docs:   make(map[uuid.UUID]*models.Document),
		chunks: make(map[uuid.UUID]*models.Chunk),
	}
}

// SaveLibrary stores a library.
func (s *MemoryStore) SaveLibrary(ctx context.Context, lib *models.Library) error {
	s.libMu.Lock()
	defer s.libMu.Unlock()
	s.libs[lib.ID] = lib.Clone()
	return nil
}

// GetLibrary returns a library by id.
func (s *MemoryStore) GetLibrary(ctx context.Context, id uuid.UUID) (*models.Library, error) {
	s.libMu.RLock()
	defer s.libMu.RUnlock()
	lib, ok := s.libs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "library %s not found", id)
	}
	return lib.Clone(), nil
}

// ListLibraries returns all libraries ordered by id.
func (s *MemoryStore) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	s.libMu.RLock()
	defer s.libMu.RUnlock()
	out := make([]*models.Library, 0, len(s.libs))
	for _, lib := range s.libs {
		out = append(out, lib.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// UpdateLibrary replaces a stored library.
func (s *MemoryStore) UpdateLibrary(ctx context.Context, lib *models.Library) error {
	s.libMu.Lock()
	defer s.libMu.Unlock()
	if _, ok := s.libs[lib.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "library %s not found", lib.ID)
	}
	s.libs[lib.ID] = lib.Clone()
	return nil
}

// DeleteLibrary removes a library. Unknown ids are no-ops.
func (s *MemoryStore) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	s.libMu.Lock()
	defer s.libMu.Unlock()
	delete(s.libs, id)
	return nil
}

// SaveDocument stores a document.
func (s *MemoryStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// GetDocument returns a document by id.
func (s *MemoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document %s not found", id)
	}
	return doc.Clone(), nil
}

// UpdateDocument replaces a stored document.
func (s *MemoryStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "document %s not found", doc.ID)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// DeleteDocument removes a document. Unknown ids are no-ops.
func (s *MemoryStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	delete(s.docs, id)
	return nil
}

// SaveChunk stores a chunk.
func (s *MemoryStore) SaveChunk(ctx context.Context, chunk *models.Chunk) error {
	s.chkMu.Lock()
	defer s.chkMu.Unlock()
	s.chunks[chunk.ID] = chunk.Clone()
	return nil
}

// GetChunk returns a chunk by id.
func (s *MemoryStore) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	s.chkMu.RLock()
	defer s.chkMu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "chunk %s not found", id)
	}
	return chunk.Clone(), nil
}

// UpdateChunk replaces a stored chunk.
func (s *MemoryStore) UpdateChunk(ctx context.Context, chunk *models.Chunk) error {
	s.chkMu.Lock()
	defer s.chkMu.Unlock()
	if _, ok := s.chunks[chunk.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "chunk %s not found", chunk.ID)
	}
	s.chunks[chunk.ID] = chunk.Clone()
	return nil
}

// DeleteChunk removes a chunk. Unknown ids are no-ops.
func (s *MemoryStore) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	s.chkMu.Lock()
	defer s.chkMu.Unlock()
	delete(s.chunks, id)
	return nil
}

// ListChunksByLibrary returns all chunks of a library ordered by id.
func (s *MemoryStore) ListChunksByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*models.Chunk, error) {
	s.chkMu.RLock()
	defer s.chkMu.RUnlock()
	var out []*models.Chunk
	for _, chunk := range s.chunks {
		if chunk.LibraryID == libraryID {
			out = append(out, chunk.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// CountLibraries returns the number of libraries.
func (s *MemoryStore) CountLibraries(ctx context.Context) (int64, error) {
	s.libMu.RLock()
	defer s.libMu.RUnlock()
	return int64(len(s.libs)), nil
}

// CountDocuments returns the number of documents.
func (s *MemoryStore) CountDocuments(ctx context.Context) (int64, error) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return int64(len(s.docs)), nil
}

// CountChunks returns the number of chunks.
func (s *MemoryStore) CountChunks(ctx context.Context) (int64, error) {
	s.chkMu.RLock()
	defer s.chkMu.RUnlock()
	return int64(len(s.chunks)), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error { return nil }
