package clustering

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrNoPoints           = errors.New("no points to cluster")
	ErrInconsistentPoints = errors.New("points have inconsistent dimensions")
)

// KMeansConfig holds configuration for K-means clustering
type KMeansConfig struct {
	MaxIterations int     // Maximum number of Lloyd iterations
	Tolerance     float64 // Stop once no centroid moves more than this (squared)
	Seed          int64   // Seed for k-means++ initialization
}

// DefaultKMeansConfig returns the settings used by the clustering stage.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{
		MaxIterations: 300,
		Tolerance:     1e-8,
		Seed:          42,
	}
}

// Result is the outcome of one k-means fit.
type Result struct {
	Labels     []int
	Centroids  [][]float64
	Iterations int
	Inertia    float64
}

// KMeans partitions points into exactly k clusters using squared Euclidean
// distance. The same seed and input always produce the same labels.
type KMeans struct {
	config KMeansConfig
}

func NewKMeans(config KMeansConfig) *KMeans {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultKMeansConfig().MaxIterations
	}
	return &KMeans{config: config}
}

// Fit clusters points into k groups. Every label in the result is in [0, k)
// and every cluster has at least one member.
func (km *KMeans) Fit(points [][]float64, k int) (*Result, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	if k <= 0 || k > len(points) {
		return nil, fmt.Errorf("invalid k: %d (must be 1-%d)", k, len(points))
	}

	dim := len(points[0])
	for _, p := range points {
		if len(p) != dim {
			return nil, ErrInconsistentPoints
		}
	}

	rng := rand.New(rand.NewSource(km.config.Seed))
	centroids := initCentroidsPlusPlus(points, k, rng)
	labels := make([]int, len(points))

	iterations := 0
	for iterations < km.config.MaxIterations {
		iterations++

		changed := assign(points, centroids, labels)
		fillEmptyClusters(points, centroids, labels, k)

		next := updateCentroids(points, labels, k, dim)
		shift := 0.0
		for c := range next {
			if d := squaredDistance(next[c], centroids[c]); d > shift {
				shift = d
			}
		}
		centroids = next

		if iterations > 1 && !changed && shift <= km.config.Tolerance {
			break
		}
	}

	// Final assignment against the settled centroids.
	assign(points, centroids, labels)
	fillEmptyClusters(points, centroids, labels, k)

	inertia := 0.0
	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}

	return &Result{
		Labels:     labels,
		Centroids:  centroids,
		Iterations: iterations,
		Inertia:    inertia,
	}, nil
}

// initCentroidsPlusPlus seeds centroids with probability proportional to the
// squared distance from the nearest centroid already chosen.
func initCentroidsPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(len(points))]))

	distances := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			minDist := math.Inf(1)
			for _, c := range centroids {
				if d := squaredDistance(p, c); d < minDist {
					minDist = d
				}
			}
			distances[i] = minDist
			total += minDist
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, clone(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		cumulative := 0.0
		selected := len(points) - 1
		for i, d := range distances {
			cumulative += d
			if cumulative >= target {
				selected = i
				break
			}
		}
		centroids = append(centroids, clone(points[selected]))
	}

	return centroids
}

// assign labels every point with its nearest centroid and reports whether
// any label changed.
func assign(points, centroids [][]float64, labels []int) bool {
	changed := false
	for i, p := range points {
		nearest := 0
		minDist := math.Inf(1)
		for c, centroid := range centroids {
			if d := squaredDistance(p, centroid); d < minDist {
				minDist = d
				nearest = c
			}
		}
		if labels[i] != nearest {
			labels[i] = nearest
			changed = true
		}
	}
	return changed
}

// fillEmptyClusters moves the point farthest from its centroid into each
// empty cluster, taking only from clusters with more than one member.
func fillEmptyClusters(points, centroids [][]float64, labels []int, k int) {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			continue
		}
		farthest := -1
		maxDist := -1.0
		for i, p := range points {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := squaredDistance(p, centroids[labels[i]]); d > maxDist {
				maxDist = d
				farthest = i
			}
		}
		if farthest < 0 {
			return
		}
		counts[labels[farthest]]--
		labels[farthest] = c
		counts[c]++
		centroids[c] = clone(points[farthest])
	}
}

// updateCentroids recalculates centroids as the mean of their members.
func updateCentroids(points [][]float64, labels []int, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	counts := make([]int, k)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}

	for i, p := range points {
		c := labels[i]
		counts[c]++
		for j := range p {
			centroids[c][j] += p[j]
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] /= float64(counts[c])
		}
	}
	return centroids
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
