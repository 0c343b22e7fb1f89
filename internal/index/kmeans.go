package index

import (
	"math/rand"

	"github.com/hyperjump/bekutoru/internal/vector"
)

// runKMeans clusters vecs into k groups with k-means++ initialization and
// Lloyd iterations. Returns the centroids and the assignment label of each
// input vector. Centroids are not normalized; callers renormalize as needed.
func runKMeans(vecs [][]float32, k, maxIter int, tol float64, rng *rand.Rand) ([][]float32, []int) {
	n := len(vecs)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	centroids := initPlusPlus(vecs, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < maxIter; iter++ {
		// Assignment step.
		for i, v := range vecs {
			labels[i] = nearestCentroid(v, centroids)
		}

		// Update step.
		counts := make([]int, k)
		sums := make([][]float64, k)
		dim := len(vecs[0])
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := labels[i]
			counts[c]++
			for j := range v {
				sums[c][j] += float64(v[j])
			}
		}

		var totalShift float64
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Re-seed the empty cluster to the point farthest from
				// its assigned centroid.
				far := farthestPoint(vecs, labels, centroids)
				next := make([]float32, dim)
				copy(next, vecs[far])
				totalShift += vector.SquaredDistance(centroids[c], next)
				centroids[c] = next
				labels[far] = c
				continue
			}
			next := make([]float32, dim)
			inv := 1.0 / float64(counts[c])
			for j := range next {
				next[j] = float32(sums[c][j] * inv)
			}
			totalShift += vector.SquaredDistance(centroids[c], next)
			centroids[c] = next
		}

		if totalShift < tol {
			break
		}
	}

	for i, v := range vecs {
		labels[i] = nearestCentroid(v, centroids)
	}
	return centroids, labels
}

// initPlusPlus picks the first centroid uniformly at random and each
// subsequent centroid with probability proportional to the squared distance
// to the nearest chosen centroid.
func initPlusPlus(vecs [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vecs)
	centroids := make([][]float32, 0, k)
	first := append([]float32(nil), vecs[rng.Intn(n)]...)
	centroids = append(centroids, first)

	dists := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, v := range vecs {
			best := vector.SquaredDistance(v, centroids[0])
			for _, c := range centroids[1:] {
				if d := vector.SquaredDistance(v, c); d < best {
					best = d
				}
			}
			dists[i] = best
			total += best
		}

		var pick int
		if total == 0 {
			// All points coincide with chosen centroids; fall back to uniform.
			pick = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			var acc float64
			for i, d := range dists {
				acc += d
				if acc >= target {
					pick = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float32(nil), vecs[pick]...))
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := vector.SquaredDistance(v, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := vector.SquaredDistance(v, centroids[c]); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func farthestPoint(vecs [][]float32, labels []int, centroids [][]float32) int {
	far := 0
	farDist := -1.0
	for i, v := range vecs {
		d := vector.SquaredDistance(v, centroids[labels[i]])
		if d > farDist {
			farDist = d
			far = i
		}
	}
	return far
}
