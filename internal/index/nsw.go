package index

import (
	"container/heap"

	"github.com/google/uuid"

	"github.com/hyperjump/bekutoru/internal/vector"
)

// NSW is an incremental navigable small-world graph. Each node keeps a
// bounded adjacency list; inserts find neighbors with a beam search and a
// diversity heuristic, queries run the same beam from a stable entry point.
type NSW struct {
	snap     snapshots
	cfg      nswConfig
	nodes    map[uuid.UUID]*nswNode
	entry    uuid.UUID
	hasEntry bool
}

type nswNode struct {
	vec []float32
	// neighbors is kept ordered by score desc, id asc. Scores are the
	// similarity between this node and the neighbor.
	neighbors []Candidate
}

// NewNSW creates an empty NSW index with the given configuration.
func NewNSW(cfg nswConfig) *NSW {
	return &NSW{
		snap:  newSnapshots(),
		cfg:   cfg,
		nodes: make(map[uuid.UUID]*nswNode),
	}
}

// Add inserts a vector, wiring it into the graph. The first insert becomes
// the entry point; the entry point stays stable otherwise.
func (ix *NSW) Add(id uuid.UUID, vec []float32, meta map[string]any) {
	ix.Remove(id)
	ix.snap.set(id, vec, meta)

	node := &nswNode{vec: vec}
	if !ix.hasEntry {
		ix.nodes[id] = node
		ix.entry = id
		ix.hasEntry = true
		return
	}

	candidates := ix.beamSearch(vec, ix.cfg.EfConstruction)
	selected := selectDiverse(candidates, vec, ix.cfg.M, ix.nodes)
	ix.nodes[id] = node
	for _, nb := range selected {
		ix.connect(id, nb.ID, nb.Score)
	}
}

// Update re-links an existing entry. A changed vector re-inserts the node so
// the topology reflects its new position; a metadata-only change touches the
// snapshot alone.
func (ix *NSW) Update(id uuid.UUID, vec []float32, meta map[string]any) bool {
	if _, ok := ix.nodes[id]; !ok {
		return false
	}
	if vec == nil {
		ix.snap.refresh(id, meta)
		return true
	}
	newMeta := meta
	if newMeta == nil {
		newMeta = ix.snap.get(id)
	}
	ix.Add(id, vec, newMeta)
	return true
}

// Remove deletes the node and all back-edges. When the entry point is
// removed the smallest remaining id takes over.
func (ix *NSW) Remove(id uuid.UUID) bool {
	node, ok := ix.nodes[id]
	if !ok {
		return false
	}
	for _, e := range node.neighbors {
		if nb, ok := ix.nodes[e.ID]; ok {
			nb.neighbors = dropEdge(nb.neighbors, id)
		}
	}
	delete(ix.nodes, id)
	ix.snap.delete(id)

	if ix.hasEntry && ix.entry == id {
		ix.hasEntry = false
		for nid := range ix.nodes {
			if !ix.hasEntry || lessID(nid, ix.entry) {
				ix.entry = nid
				ix.hasEntry = true
			}
		}
	}
	return true
}

// Build is a no-op: the graph is always up to date.
func (ix *NSW) Build() error { return nil }

// Query beam-searches from the entry point with breadth ef_search (at least k).
func (ix *NSW) Query(query []float32, k int) []Candidate {
	if k <= 0 || !ix.hasEntry {
		return nil
	}
	ef := ix.cfg.EfSearch
	if ef < k {
		ef = k
	}
	results := ix.beamSearch(query, ef)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Meta returns the metadata snapshot for id.
func (ix *NSW) Meta(id uuid.UUID) map[string]any { return ix.snap.get(id) }

// Dimension returns the vector dimension fixed by the first add.
func (ix *NSW) Dimension() int { return ix.snap.dim }

// Size returns the number of graph nodes.
func (ix *NSW) Size() int { return len(ix.nodes) }

// beamSearch explores the graph from the entry point, keeping the ef best
// candidates seen. Returns them sorted by score desc, id asc.
func (ix *NSW) beamSearch(query []float32, ef int) []Candidate {
	if !ix.hasEntry {
		return nil
	}
	visited := make(map[uuid.UUID]bool)
	frontier := make(frontierHeap, 0, ef)
	results := make(topKHeap, 0, ef)

	seed := Candidate{ID: ix.entry, Score: vector.Dot(query, ix.nodes[ix.entry].vec)}
	visited[ix.entry] = true
	heap.Push(&frontier, seed)
	results.offer(seed, ef)

	for frontier.Len() > 0 {
		cur := heap.Pop(&frontier).(Candidate)
		if results.Len() >= ef && worse(cur, results.worst()) {
			break
		}
		for _, e := range ix.nodes[cur.ID].neighbors {
			if visited[e.ID] {
				continue
			}
			visited[e.ID] = true
			cand := Candidate{ID: e.ID, Score: vector.Dot(query, ix.nodes[e.ID].vec)}
			if results.Len() < ef || !worse(cand, results.worst()) {
				heap.Push(&frontier, cand)
				results.offer(cand, ef)
			}
		}
	}
	return results.sorted()
}

// connect adds a bidirectional edge and re-prunes the existing endpoint if it
// now exceeds m edges.
func (ix *NSW) connect(a, b uuid.UUID, score float64) {
	ix.nodes[a].neighbors = insertEdge(ix.nodes[a].neighbors, Candidate{ID: b, Score: score})
	ix.nodes[b].neighbors = insertEdge(ix.nodes[b].neighbors, Candidate{ID: a, Score: score})
	if len(ix.nodes[b].neighbors) > ix.cfg.M {
		ix.prune(b)
	}
}

// prune trims a node's adjacency back to m with the same diversity
// heuristic used at insert, dropping the corresponding back-edges. When the
// heuristic keeps fewer than m, the best-scored rejected edges backfill the
// list so nodes do not lose connectivity.
func (ix *NSW) prune(id uuid.UUID) {
	node := ix.nodes[id]
	kept := selectDiverse(node.neighbors, node.vec, ix.cfg.M, ix.nodes)
	if len(kept) < ix.cfg.M {
		chosen := make(map[uuid.UUID]bool, len(kept))
		for _, e := range kept {
			chosen[e.ID] = true
		}
		for _, e := range node.neighbors {
			if len(kept) >= ix.cfg.M {
				break
			}
			if !chosen[e.ID] {
				kept = insertEdge(kept, e)
			}
		}
	}
	keep := make(map[uuid.UUID]bool, len(kept))
	for _, e := range kept {
		keep[e.ID] = true
	}
	for _, e := range node.neighbors {
		if !keep[e.ID] {
			if nb, ok := ix.nodes[e.ID]; ok {
				nb.neighbors = dropEdge(nb.neighbors, id)
			}
		}
	}
	node.neighbors = kept
}

// selectDiverse walks candidates in descending similarity to target and
// accepts a candidate only when it is closer to the target than to any
// already-accepted neighbor. This prunes redundant same-cluster links.
func selectDiverse(candidates []Candidate, target []float32, m int, nodes map[uuid.UUID]*nswNode) []Candidate {
	selected := make([]Candidate, 0, m)
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		cnode, ok := nodes[c.ID]
		if !ok {
			continue
		}
		diverse := true
		for _, a := range selected {
			if vector.Dot(cnode.vec, nodes[a.ID].vec) > c.Score {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c)
		}
	}
	return selected
}

// insertEdge inserts e keeping the list ordered by score desc, id asc.
// Re-inserting an existing neighbor refreshes its score.
func insertEdge(edges []Candidate, e Candidate) []Candidate {
	edges = dropEdge(edges, e.ID)
	at := len(edges)
	for i, cur := range edges {
		if worse(cur, e) {
			at = i
			break
		}
	}
	edges = append(edges, Candidate{})
	copy(edges[at+1:], edges[at:])
	edges[at] = e
	return edges
}

func dropEdge(edges []Candidate, id uuid.UUID) []Candidate {
	for i, e := range edges {
		if e.ID == id {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}
