package index

import (
	"github.com/google/uuid"

	"github.com/hyperjump/bekutoru/internal/vector"
)

// Linear is an exact brute-force index over a dense (id, vector) table.
// Query cost is O(nD); Build is a no-op.
type Linear struct {
	snap snapshots
	ids  []uuid.UUID
	vecs [][]float32
	pos  map[uuid.UUID]int
}

// NewLinear creates an empty linear index.
func NewLinear() *Linear {
	return &Linear{
		snap: newSnapshots(),
		pos:  make(map[uuid.UUID]int),
	}
}

// Add inserts a vector, replacing any existing entry with the same id.
func (l *Linear) Add(id uuid.UUID, vec []float32, meta map[string]any) {
	l.Remove(id)
	l.pos[id] = len(l.ids)
	l.ids = append(l.ids, id)
	l.vecs = append(l.vecs, vec)
	l.snap.set(id, vec, meta)
}

// Update replaces the vector and/or metadata of an existing entry.
func (l *Linear) Update(id uuid.UUID, vec []float32, meta map[string]any) bool {
	i, ok := l.pos[id]
	if !ok {
		return false
	}
	if vec != nil {
		l.vecs[i] = vec
	}
	l.snap.refresh(id, meta)
	return true
}

// Remove deletes an entry by swap-pop.
func (l *Linear) Remove(id uuid.UUID) bool {
	i, ok := l.pos[id]
	if !ok {
		return false
	}
	last := len(l.ids) - 1
	if i != last {
		l.ids[i] = l.ids[last]
		l.vecs[i] = l.vecs[last]
		l.pos[l.ids[i]] = i
	}
	l.ids = l.ids[:last]
	l.vecs = l.vecs[:last]
	delete(l.pos, id)
	l.snap.delete(id)
	return true
}

// Build is a no-op for the linear index.
func (l *Linear) Build() error { return nil }

// Query scans every stored vector, keeping the best k in a bounded heap.
func (l *Linear) Query(query []float32, k int) []Candidate {
	if k <= 0 || len(l.ids) == 0 {
		return nil
	}
	h := make(topKHeap, 0, k)
	for i, vec := range l.vecs {
		h.offer(Candidate{ID: l.ids[i], Score: vector.Dot(query, vec)}, k)
	}
	return h.sorted()
}

// Meta returns the metadata snapshot for id.
func (l *Linear) Meta(id uuid.UUID) map[string]any { return l.snap.get(id) }

// Dimension returns the vector dimension fixed by the first add.
func (l *Linear) Dimension() int { return l.snap.dim }

// Size returns the number of stored vectors.
func (l *Linear) Size() int { return len(l.ids) }
