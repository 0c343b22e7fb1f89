package index

import (
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/vector"
)

// IVF is an inverted-file index: k-means partitions the vectors into
// clusters and queries scan only the lists of the closest centroids plus
// the unclustered buffer. Inserts land in the buffer until the next Build.
type IVF struct {
	snap   snapshots
	cfg    ivfConfig
	rng    *rand.Rand
	logger *zap.Logger

	centroids [][]float32
	lists     [][]ivfEntry
	lookup    map[uuid.UUID]ivfPos
	buffer    map[uuid.UUID][]float32
}

type ivfEntry struct {
	id  uuid.UUID
	vec []float32
}

type ivfPos struct {
	list   int
	offset int
}

// NewIVF creates an empty IVF index with the given configuration.
func NewIVF(cfg ivfConfig, logger *zap.Logger) *IVF {
	return &IVF{
		snap:   newSnapshots(),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
		lookup: make(map[uuid.UUID]ivfPos),
		buffer: make(map[uuid.UUID][]float32),
	}
}

// Add stages a vector in the unclustered buffer, replacing any existing entry.
func (ix *IVF) Add(id uuid.UUID, vec []float32, meta map[string]any) {
	ix.Remove(id)
	ix.buffer[id] = vec
	ix.snap.set(id, vec, meta)
}

// Update re-stages an existing entry. A changed vector moves the entry back
// to the buffer to be re-clustered at the next Build.
func (ix *IVF) Update(id uuid.UUID, vec []float32, meta map[string]any) bool {
	_, buffered := ix.buffer[id]
	pos, listed := ix.lookup[id]
	if !buffered && !listed {
		return false
	}
	if vec != nil {
		if listed {
			ix.removeFromList(id, pos)
		}
		ix.buffer[id] = vec
	}
	ix.snap.refresh(id, meta)
	return true
}

// Remove deletes an entry from the buffer or its inverted list.
func (ix *IVF) Remove(id uuid.UUID) bool {
	if _, ok := ix.buffer[id]; ok {
		delete(ix.buffer, id)
		ix.snap.delete(id)
		return true
	}
	pos, ok := ix.lookup[id]
	if !ok {
		return false
	}
	ix.removeFromList(id, pos)
	ix.snap.delete(id)
	return true
}

// removeFromList swap-pops id out of its inverted list and fixes the lookup
// entry of the moved element.
func (ix *IVF) removeFromList(id uuid.UUID, pos ivfPos) {
	list := ix.lists[pos.list]
	last := len(list) - 1
	if pos.offset != last {
		list[pos.offset] = list[last]
		ix.lookup[list[pos.offset].id] = pos
	}
	ix.lists[pos.list] = list[:last]
	delete(ix.lookup, id)
}

// Build clusters everything (buffer and current lists) with k-means++ and
// Lloyd iterations, renormalizes the centroids, reassigns every vector to
// its nearest centroid, and clears the buffer. Degenerate clusterings fall
// back to a single cluster.
func (ix *IVF) Build() error {
	ids, vecs := ix.gather()
	if len(ids) == 0 {
		ix.centroids = nil
		ix.lists = nil
		ix.lookup = make(map[uuid.UUID]ivfPos)
		ix.buffer = make(map[uuid.UUID][]float32)
		return nil
	}

	k := ix.effectiveClusters(len(ids))
	centroids, labels := runKMeans(vecs, k, ix.cfg.MaxIter, ix.cfg.Tolerance, ix.rng)

	if k > 1 && nonEmptyClusters(labels, len(centroids)) <= 1 {
		ix.logger.Warn("degenerate clustering, falling back to a single cluster",
			zap.Int("requested_clusters", k), zap.Int("vectors", len(ids)))
		centroids, labels = runKMeans(vecs, 1, ix.cfg.MaxIter, ix.cfg.Tolerance, ix.rng)
	}

	for c := range centroids {
		if normalized, err := vector.Normalize(centroids[c]); err == nil {
			centroids[c] = normalized
		}
	}

	lists := make([][]ivfEntry, len(centroids))
	lookup := make(map[uuid.UUID]ivfPos, len(ids))
	for i, id := range ids {
		c := nearestCentroid(vecs[i], centroids)
		lookup[id] = ivfPos{list: c, offset: len(lists[c])}
		lists[c] = append(lists[c], ivfEntry{id: id, vec: vecs[i]})
	}

	ix.centroids = centroids
	ix.lists = lists
	ix.lookup = lookup
	ix.buffer = make(map[uuid.UUID][]float32)
	return nil
}

// Query probes the top n_probes centroid lists plus the unclustered buffer.
// Before the first Build it degrades to a linear scan over everything.
func (ix *IVF) Query(query []float32, k int) []Candidate {
	if k <= 0 {
		return nil
	}
	h := make(topKHeap, 0, k)

	if len(ix.centroids) == 0 {
		for id, vec := range ix.buffer {
			h.offer(Candidate{ID: id, Score: vector.Dot(query, vec)}, k)
		}
		for _, list := range ix.lists {
			for _, e := range list {
				h.offer(Candidate{ID: e.id, Score: vector.Dot(query, e.vec)}, k)
			}
		}
		return h.sorted()
	}

	probes := ix.cfg.NProbes
	if probes > len(ix.centroids) {
		probes = len(ix.centroids)
	}
	ranked := make([]int, len(ix.centroids))
	scores := make([]float64, len(ix.centroids))
	for c, centroid := range ix.centroids {
		ranked[c] = c
		scores[c] = vector.Dot(query, centroid)
	}
	partialSelect(ranked, scores, probes)

	for _, c := range ranked[:probes] {
		for _, e := range ix.lists[c] {
			h.offer(Candidate{ID: e.id, Score: vector.Dot(query, e.vec)}, k)
		}
	}
	for id, vec := range ix.buffer {
		h.offer(Candidate{ID: id, Score: vector.Dot(query, vec)}, k)
	}
	return h.sorted()
}

// Meta returns the metadata snapshot for id.
func (ix *IVF) Meta(id uuid.UUID) map[string]any { return ix.snap.get(id) }

// Dimension returns the vector dimension fixed by the first add.
func (ix *IVF) Dimension() int { return ix.snap.dim }

// Size returns the number of entries across the buffer and all lists.
func (ix *IVF) Size() int { return len(ix.buffer) + len(ix.lookup) }

// Centroids returns the number of clusters, 0 before the first build.
func (ix *IVF) Centroids() int { return len(ix.centroids) }

// gather collects every vector in a deterministic order so that seeded
// k-means runs are reproducible.
func (ix *IVF) gather() ([]uuid.UUID, [][]float32) {
	total := ix.Size()
	ids := make([]uuid.UUID, 0, total)
	vecs := make([][]float32, 0, total)
	for _, list := range ix.lists {
		for _, e := range list {
			ids = append(ids, e.id)
			vecs = append(vecs, e.vec)
		}
	}
	buffered := make([]uuid.UUID, 0, len(ix.buffer))
	for id := range ix.buffer {
		buffered = append(buffered, id)
	}
	sort.Slice(buffered, func(i, j int) bool { return lessID(buffered[i], buffered[j]) })
	for _, id := range buffered {
		ids = append(ids, id)
		vecs = append(vecs, ix.buffer[id])
	}
	return ids, vecs
}

func (ix *IVF) effectiveClusters(n int) int {
	k := ix.cfg.NClusters
	if k == 0 {
		k = int(math.Round(float64(n) * ix.cfg.ClusterRatio))
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

func nonEmptyClusters(labels []int, k int) int {
	seen := make([]bool, k)
	count := 0
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			count++
		}
	}
	return count
}

// partialSelect reorders ids so that the first n entries are the
// highest-scored, in descending score order with ascending-index ties.
func partialSelect(ids []int, scores []float64, n int) {
	for i := 0; i < n && i < len(ids); i++ {
		best := i
		for j := i + 1; j < len(ids); j++ {
			sj, sb := scores[ids[j]], scores[ids[best]]
			if sj > sb || (sj == sb && ids[j] < ids[best]) {
				best = j
			}
		}
		ids[i], ids[best] = ids[best], ids[i]
	}
}
