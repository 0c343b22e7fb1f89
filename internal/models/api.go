package models

import (
	"time"

	"github.com/google/uuid"
)

// LibraryCreateRequest is the input for creating a library.
type LibraryCreateRequest struct {
	Name        string         `json:"name"`
	IndexKind   string         `json:"index_kind,omitempty"`
	IndexParams map[string]any `json:"index_params,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// LibraryUpdateRequest patches a library. At least one field must be present.
type LibraryUpdateRequest struct {
	Name     *string        `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LibraryResponse is the API form of a library.
type LibraryResponse struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	IndexKind   string         `json:"index_kind"`
	IndexParams map[string]any `json:"index_params,omitempty"`
	Documents   []uuid.UUID    `json:"documents"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewLibraryResponse converts a library to its API form.
func NewLibraryResponse(l *Library) *LibraryResponse {
	return &LibraryResponse{
		ID:          l.ID,
		Name:        l.Name,
		IndexKind:   string(l.IndexKind),
		IndexParams: l.IndexParams,
		Documents:   SortedIDs(l.Documents),
		Metadata:    orEmpty(l.Metadata),
		CreatedAt:   l.CreatedAt,
	}
}

// DocumentCreateRequest is the input for creating a document.
type DocumentCreateRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentUpdateRequest replaces a document's metadata.
type DocumentUpdateRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// DocumentResponse is the API form of a document.
type DocumentResponse struct {
	ID        uuid.UUID      `json:"id"`
	LibraryID uuid.UUID      `json:"library_id"`
	Chunks    []uuid.UUID    `json:"chunks"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewDocumentResponse converts a document to its API form.
func NewDocumentResponse(d *Document) *DocumentResponse {
	return &DocumentResponse{
		ID:        d.ID,
		LibraryID: d.LibraryID,
		Chunks:    SortedIDs(d.Chunks),
		Metadata:  orEmpty(d.Metadata),
		CreatedAt: d.CreatedAt,
	}
}

// ChunkCreateRequest is the input for creating a chunk. When DocumentID is nil
// a new document is created with DocumentMetadata.
type ChunkCreateRequest struct {
	Text             string         `json:"text"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	DocumentID       *uuid.UUID     `json:"document_id,omitempty"`
	DocumentMetadata map[string]any `json:"document_metadata,omitempty"`
}

// ChunkUpdateRequest patches a chunk. At least one field must be present.
type ChunkUpdateRequest struct {
	Text     *string        `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChunkResponse is the API form of a chunk. Embeddings are not exposed.
type ChunkResponse struct {
	ID         uuid.UUID      `json:"id"`
	DocumentID uuid.UUID      `json:"document_id"`
	LibraryID  uuid.UUID      `json:"library_id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewChunkResponse converts a chunk to its API form.
func NewChunkResponse(c *Chunk) *ChunkResponse {
	return &ChunkResponse{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		LibraryID:  c.LibraryID,
		Text:       c.Text,
		Metadata:   orEmpty(c.Metadata),
		CreatedAt:  c.CreatedAt,
	}
}

// SearchRequest is the input for a search command.
type SearchRequest struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Filters map[string]any `json:"filters,omitempty"`
}

// SearchResult is one scored hit with its chunk snapshot.
type SearchResult struct {
	ChunkID uuid.UUID      `json:"chunk_id"`
	Score   float64        `json:"score"`
	Chunk   *ChunkResponse `json:"chunk"`
}

// SearchResponse is the result list for a search command.
type SearchResponse struct {
	LibraryID uuid.UUID      `json:"library_id"`
	Query     string         `json:"query"`
	K         int            `json:"k"`
	Filters   map[string]any `json:"filters,omitempty"`
	Results   []SearchResult `json:"results"`
}

// BuildResponse acknowledges an index build.
type BuildResponse struct {
	LibraryID   uuid.UUID `json:"library_id"`
	Message     string    `json:"message"`
	LastBuiltAt time.Time `json:"last_built_at"`
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
