// Package index provides the nearest-neighbor index contract and its
// linear, IVF, and NSW implementations.
//
// Implementations are not safe for concurrent use; the library coordinator
// serializes access through a per-library readers-writer lock.
package index

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/models"
)

// Candidate is a single scored hit.
type Candidate struct {
	ID    uuid.UUID
	Score float64
}

// Index is the common contract for all nearest-neighbor indexes.
type Index interface {
	// Add inserts a vector with its metadata snapshot. Re-adding an
	// existing id removes the old entry first.
	Add(id uuid.UUID, vec []float32, meta map[string]any)
	// Update re-links an existing entry. A nil vec keeps the current
	// vector; a nil meta keeps the current snapshot. Returns false for
	// unknown ids.
	Update(id uuid.UUID, vec []float32, meta map[string]any) bool
	// Remove deletes an entry. Unknown ids are no-ops returning false.
	Remove(id uuid.UUID) bool
	// Build runs any consolidation the index needs. Callable repeatedly.
	Build() error
	// Query returns up to k candidates by descending cosine similarity,
	// ties broken by ascending id. No metadata filtering happens here.
	Query(query []float32, k int) []Candidate
	// Meta returns the metadata snapshot stored at the entry's last
	// add or update, or nil for unknown ids.
	Meta(id uuid.UUID) map[string]any
	// Dimension returns the vector dimension, or 0 before the first add.
	Dimension() int
	// Size returns the number of indexed entries.
	Size() int
}

// New creates an index of the given kind configured from params.
func New(kind models.IndexKind, params map[string]any, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch kind {
	case models.IndexLinear, "":
		return NewLinear(), nil
	case models.IndexIVF:
		cfg, err := parseIVFParams(params)
		if err != nil {
			return nil, err
		}
		return NewIVF(cfg, logger), nil
	case models.IndexNSW:
		cfg, err := parseNSWParams(params)
		if err != nil {
			return nil, err
		}
		return NewNSW(cfg), nil
	default:
		return nil, fmt.Errorf("unknown index kind: %s (supported: linear, ivf, nsw)", kind)
	}
}

// lessID orders ids by their 128-bit value, which matches canonical string order.
func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// snapshots is the per-index metadata side of the vector table: the values
// filters see, refreshed on add and update. The dimension is fixed by the
// first add.
type snapshots struct {
	dim  int
	meta map[uuid.UUID]map[string]any
}

func newSnapshots() snapshots {
	return snapshots{meta: make(map[uuid.UUID]map[string]any)}
}

func (s *snapshots) set(id uuid.UUID, vec []float32, meta map[string]any) {
	if s.dim == 0 {
		s.dim = len(vec)
	}
	s.meta[id] = models.CloneMetadata(meta)
}

func (s *snapshots) refresh(id uuid.UUID, meta map[string]any) {
	if meta != nil {
		s.meta[id] = models.CloneMetadata(meta)
	}
}

func (s *snapshots) delete(id uuid.UUID) {
	delete(s.meta, id)
}

func (s *snapshots) get(id uuid.UUID) map[string]any {
	return s.meta[id]
}
