// Package models defines the domain entities: libraries, documents, and chunks.
package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IndexKind selects the nearest-neighbor index backing a library.
type IndexKind string

const (
	// IndexLinear is an exact brute-force scan.
	IndexLinear IndexKind = "linear"
	// IndexIVF is an inverted-file index with k-means clustering.
	IndexIVF IndexKind = "ivf"
	// IndexNSW is a navigable small-world graph index.
	IndexNSW IndexKind = "nsw"
)

// ParseIndexKind validates and converts an index kind string.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case IndexLinear, IndexIVF, IndexNSW:
		return IndexKind(s), nil
	case "":
		return IndexLinear, nil
	default:
		return "", fmt.Errorf("unknown index kind: %s (supported: linear, ivf, nsw)", s)
	}
}

// Library is a named collection with one index; the unit of isolation.
type Library struct {
	ID          uuid.UUID
	Name        string
	IndexKind   IndexKind
	IndexParams map[string]any
	Documents   map[uuid.UUID]struct{}
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Clone returns a deep copy of the library.
func (l *Library) Clone() *Library {
	out := *l
	out.IndexParams = cloneMap(l.IndexParams)
	out.Metadata = cloneMap(l.Metadata)
	out.Documents = cloneSet(l.Documents)
	return &out
}

// Document groups chunks under one library and carries metadata.
type Document struct {
	ID        uuid.UUID
	LibraryID uuid.UUID
	Chunks    map[uuid.UUID]struct{}
	Metadata  map[string]any
	CreatedAt time.Time
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.Metadata = cloneMap(d.Metadata)
	out.Chunks = cloneSet(d.Chunks)
	return &out
}

// Chunk is a text unit with metadata and an embedding; the atomic search target.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	LibraryID  uuid.UUID
	Text       string
	Metadata   map[string]any
	Embedding  []float32
	CreatedAt  time.Time
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	out := *c
	out.Metadata = cloneMap(c.Metadata)
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &out
}

// CloneMetadata returns a deep-enough copy of a metadata map for snapshotting.
// Values are JSON scalars or arrays thereof; arrays are copied, scalars are immutable.
func CloneMetadata(m map[string]any) map[string]any {
	return cloneMap(m)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if arr, ok := v.([]any); ok {
			out[k] = append([]any(nil), arr...)
			continue
		}
		out[k] = v
	}
	return out
}

func cloneSet(s map[uuid.UUID]struct{}) map[uuid.UUID]struct{} {
	if s == nil {
		return nil
	}
	out := make(map[uuid.UUID]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// SortedIDs returns the members of an id set sorted by canonical string form.
func SortedIDs(s map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
