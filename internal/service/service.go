// Package service implements the library coordinator: it owns one index per
// library, routes chunk CRUD to it, and orchestrates build and search.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/embedding"
	"github.com/hyperjump/bekutoru/internal/index"
	"github.com/hyperjump/bekutoru/internal/store"
)

// Config holds search tuning knobs.
type Config struct {
	// OverfetchMultiplier scales k before handing it to the index when
	// filters are present, so post-filtering can still return k results.
	OverfetchMultiplier int
	// MaxExpansions bounds how many times the multiplier doubles when a
	// filtered search comes up short.
	MaxExpansions int
}

// applyDefaults fills zero values with the published defaults.
func (c *Config) applyDefaults() {
	if c.OverfetchMultiplier == 0 {
		c.OverfetchMultiplier = 10
	}
	if c.MaxExpansions == 0 {
		c.MaxExpansions = 3
	}
}

// Service coordinates libraries, documents, chunks, and their indexes.
//
// Concurrency: every library owns a readers-writer lock. Writes (chunk CRUD,
// build) take it exclusively, searches take it shared. Embedding calls block
// on network I/O and always happen outside the lock. The registry of library
// states is guarded by its own mutex with short critical sections.
type Service struct {
	store    store.Store
	embedder embedding.Embedder
	logger   *zap.Logger
	cfg      Config

	mu   sync.Mutex
	libs map[uuid.UUID]*libraryState
}

type libraryState struct {
	mu          sync.RWMutex
	index       index.Index
	lastBuiltAt time.Time
}

// New creates a service with the given dependencies.
func New(st store.Store, embedder embedding.Embedder, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Service{
		store:    st,
		embedder: embedder,
		logger:   logger,
		cfg:      cfg,
		libs:     make(map[uuid.UUID]*libraryState),
	}
}

// state returns the live state for a library, or NotFound.
func (s *Service) state(id uuid.UUID) (*libraryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.libs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "library %s not found", id)
	}
	return st, nil
}

// Restore rebuilds the in-memory indexes from the store. Used at startup
// with a persistent backend; the in-memory backend starts empty.
func (s *Service) Restore(ctx context.Context) error {
	libs, err := s.store.ListLibraries(ctx)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		idx, err := index.New(lib.IndexKind, lib.IndexParams, s.logger)
		if err != nil {
			return err
		}
		chunks, err := s.store.ListChunksByLibrary(ctx, lib.ID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			idx.Add(chunk.ID, chunk.Embedding, chunk.Metadata)
		}
		s.mu.Lock()
		s.libs[lib.ID] = &libraryState{index: idx}
		s.mu.Unlock()
		s.logger.Info("restored library index",
			zap.String("library_id", lib.ID.String()),
			zap.String("index_kind", string(lib.IndexKind)),
			zap.Int("chunks", len(chunks)))
	}
	return nil
}

// Counts returns entity counts for the status endpoint.
func (s *Service) Counts(ctx context.Context) (libraries, documents, chunks int64, err error) {
	if libraries, err = s.store.CountLibraries(ctx); err != nil {
		return
	}
	if documents, err = s.store.CountDocuments(ctx); err != nil {
		return
	}
	chunks, err = s.store.CountChunks(ctx)
	return
}
