// Package cluster groups booking positions around vehicles so each vehicle
// receives a geographically coherent share of a dispatch batch.
package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/swedishdeveloper/digital-twin/core/geo"
)

// MaxBatchSize caps the number of points a single partition call accepts.
// Dispatch batches beyond it must be split before clustering.
const MaxBatchSize = 300

// maxIterations bounds the k-means refinement loop. Convergence is usually
// reached far earlier on dispatch-sized batches.
const maxIterations = 50

// ErrBatchTooLarge is returned for batches above MaxBatchSize.
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d points", MaxBatchSize)

// Partition assigns each point to one of k clusters using k-means on the
// raw coordinates. The result maps point index to cluster index in [0, k).
// When there are at least as many points as clusters, every cluster is
// guaranteed non-empty. Coordinates are validated up front so a bad point
// fails the whole batch with its index named.
func Partition(points []geo.Position, k int) ([]int, error) {
	if len(points) > MaxBatchSize {
		return nil, fmt.Errorf("%w (%d)", ErrBatchTooLarge, len(points))
	}
	if k <= 0 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", k)
	}
	for i, p := range points {
		if !p.Valid() {
			return nil, fmt.Errorf("point %d has invalid coordinates (%f, %f)", i, p.Lon, p.Lat)
		}
	}
	if len(points) == 0 {
		return nil, nil
	}
	if k == 1 {
		return make([]int, len(points)), nil
	}

	centroids := seedCentroids(points, k)
	assign := make([]int, len(points))
	for iter := 0; iter < maxIterations; iter++ {
		changed := reassign(points, centroids, assign)
		recenter(points, assign, centroids)
		if !changed && iter > 0 {
			break
		}
	}
	repairEmpty(points, assign, k)
	return assign, nil
}

// seedCentroids spreads the initial centroids evenly across the input
// order. Deterministic seeding keeps repeated dispatch rounds stable.
func seedCentroids(points []geo.Position, k int) [][2]float64 {
	centroids := make([][2]float64, k)
	for i := 0; i < k; i++ {
		p := points[(i*len(points))/k%len(points)]
		centroids[i] = [2]float64{p.Lon, p.Lat}
	}
	return centroids
}

func reassign(points []geo.Position, centroids [][2]float64, assign []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, 0.0
		for c := range centroids {
			d := floats.Distance([]float64{p.Lon, p.Lat}, centroids[c][:], 2)
			if c == 0 || d < bestDist {
				best, bestDist = c, d
			}
		}
		if assign[i] != best {
			assign[i] = best
			changed = true
		}
	}
	return changed
}

func recenter(points []geo.Position, assign []int, centroids [][2]float64) {
	counts := make([]int, len(centroids))
	sums := make([][2]float64, len(centroids))
	for i, p := range points {
		c := assign[i]
		sums[c][0] += p.Lon
		sums[c][1] += p.Lat
		counts[c]++
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		centroids[c][0] = sums[c][0] / float64(counts[c])
		centroids[c][1] = sums[c][1] / float64(counts[c])
	}
}

// repairEmpty moves one point from the largest cluster into each empty one
// so no vehicle is left without work when points outnumber clusters.
func repairEmpty(points []geo.Position, assign []int, k int) {
	if len(points) < k {
		return
	}
	counts := make([]int, k)
	for _, c := range assign {
		counts[c]++
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			continue
		}
		donor := 0
		for d := 1; d < k; d++ {
			if counts[d] > counts[donor] {
				donor = d
			}
		}
		if counts[donor] < 2 {
			continue
		}
		for i := len(assign) - 1; i >= 0; i-- {
			if assign[i] == donor {
				assign[i] = c
				counts[donor]--
				counts[c]++
				break
			}
		}
	}
}
