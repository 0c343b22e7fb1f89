// Package vector provides float32 vector math for normalized embeddings.
package vector

import (
	"math"

	"github.com/hyperjump/bekutoru/internal/apperr"
)

// Dot returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// Norm returns the L2 norm of a vector.
func Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// SquaredDistance returns the squared Euclidean distance between two vectors.
func SquaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// Normalize returns a copy of x scaled to unit L2 norm.
// Zero-norm vectors and vectors containing NaN are rejected.
func Normalize(x []float32) ([]float32, error) {
	for _, v := range x {
		if math.IsNaN(float64(v)) {
			return nil, apperr.New(apperr.KindInvalidVector, "vector contains NaN")
		}
	}
	norm := Norm(x)
	if norm == 0 {
		return nil, apperr.New(apperr.KindInvalidVector, "vector has zero norm")
	}
	out := make([]float32, len(x))
	inv := float32(1.0 / norm)
	for i, v := range x {
		out[i] = v * inv
	}
	return out, nil
}

// Centroid returns the L2-normalized arithmetic mean of the given vectors.
func Centroid(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, apperr.New(apperr.KindInvalidVector, "centroid of empty set")
	}
	return Normalize(Mean(vecs))
}

// Mean returns the unnormalized arithmetic mean of the given vectors.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sums := make([]float64, dim)
	for _, v := range vecs {
		for i := range v {
			sums[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	n := float64(len(vecs))
	for i, s := range sums {
		mean[i] = float32(s / n)
	}
	return mean
}
