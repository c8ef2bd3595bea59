package clustering

import (
	"errors"
	"fmt"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// ErrNoData is returned when there is nothing to partition.
var ErrNoData = errors.New("no rows to partition")

// Partitioner assigns a label in [0, k) to each row of a dissimilarity matrix.
type Partitioner interface {
	Partition(values [][]float64, k int) ([]int, error)
}

// rowObservation wraps a matrix row to implement clusters.Observation.
type rowObservation struct {
	index  int
	coords clusters.Coordinates
}

func (o rowObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o rowObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// KMeansPartitioner runs k-means over the matrix rows, so songs with similar
// dissimilarity profiles land together. Its output is not deterministic.
type KMeansPartitioner struct{}

// Partition implements Partitioner. k is lowered to the number of rows when
// there are fewer rows than clusters.
func (KMeansPartitioner) Partition(values [][]float64, k int) ([]int, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}
	if k <= 0 {
		return nil, fmt.Errorf("partitioning into %d clusters: k must be positive", k)
	}
	k = min(k, len(values))

	var obs clusters.Observations
	for i, row := range values {
		obs = append(obs, rowObservation{index: i, coords: clusters.Coordinates(row)})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("running k-means: %w", err)
	}

	labels := make([]int, len(values))
	for label, cluster := range result {
		for _, o := range cluster.Observations {
			if ro, ok := o.(rowObservation); ok {
				labels[ro.index] = label
			}
		}
	}
	return labels, nil
}

// FixedLabels is a Partitioner that returns precomputed labels, for callers
// that cluster elsewhere.
type FixedLabels []int

// Partition implements Partitioner. k is ignored.
func (f FixedLabels) Partition(values [][]float64, k int) ([]int, error) {
	if len(f) != len(values) {
		return nil, fmt.Errorf("have %d labels for %d rows", len(f), len(values))
	}
	labels := make([]int, len(f))
	copy(labels, f)
	return labels, nil
}

// RepeatingLabels returns n labels cycling 0, 0, 1, 1, ..., k-1, k-1, 0, 0, ...
func RepeatingLabels(n, k int) FixedLabels {
	labels := make(FixedLabels, n)
	if k <= 0 {
		return labels
	}
	for i := range labels {
		labels[i] = (i / 2) % k
	}
	return labels
}
