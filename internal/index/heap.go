package index

import (
	"container/heap"
	"sort"
)

// worse reports whether a ranks below b: lower score, or equal score with a
// larger id (ascending id wins ties).
func worse(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return lessID(b.ID, a.ID)
}

// topKHeap is a bounded min-heap whose root is the worst retained candidate.
type topKHeap []Candidate

func (h topKHeap) Len() int           { return len(h) }
func (h topKHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h topKHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topKHeap) Push(x any)        { *h = append(*h, x.(Candidate)) }

func (h *topKHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

func (h topKHeap) worst() Candidate { return h[0] }

// offer pushes c, evicting the worst entry when over capacity k.
func (h *topKHeap) offer(c Candidate, k int) {
	if k <= 0 {
		return
	}
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if worse(h.worst(), c) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// sorted drains the heap into a slice ordered by score desc, id asc.
func (h topKHeap) sorted() []Candidate {
	out := make([]Candidate, len(h))
	copy(out, h)
	sortCandidates(out)
	return out
}

// frontierHeap is a max-heap by score (ties by ascending id), used as the
// expansion frontier of beam searches.
type frontierHeap []Candidate

func (h frontierHeap) Len() int           { return len(h) }
func (h frontierHeap) Less(i, j int) bool { return worse(h[j], h[i]) }
func (h frontierHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x any)        { *h = append(*h, x.(Candidate)) }
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return lessID(cs[i].ID, cs[j].ID)
	})
}
