// Package store defines the entity registries for libraries, documents, and chunks.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyperjump/bekutoru/internal/models"
)

// Store persists the three entity kinds. Implementations hold one registry
// per kind; gets on unknown ids return a NotFound error, deletes of unknown
// ids are no-ops.
type Store interface {
	// Library operations
	SaveLibrary(ctx context.Context, lib *models.Library) error
	GetLibrary(ctx context.Context, id uuid.UUID) (*models.Library, error)
	ListLibraries(ctx context.Context) ([]*models.Library, error)
	UpdateLibrary(ctx context.Context, lib *models.Library) error
	DeleteLibrary(ctx context.Context, id uuid.UUID) error

	// Document operations
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Chunk operations
	SaveChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error)
	UpdateChunk(ctx context.Context, chunk *models.Chunk) error
	DeleteChunk(ctx context.Context, id uuid.UUID) error
	ListChunksByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*models.Chunk, error)

	// Stats
	CountLibraries(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
