// Package clustering partitions a song neighbourhood into clusters and lays
// the clusters out around the root song: ordering, angular spacing, color
// grouping, and a rotation that keeps the legend in the widest gap.
package clustering

import (
	"math"

	"github.com/justestif/converge/internal/graph"
)

// Layout defaults.
const (
	DefaultNumClusters         = 5
	DefaultMaxClusterSize      = 20
	DefaultSimilarityThreshold = 0.9
	DefaultLegendAngle         = 7 * math.Pi / 4
	DefaultSpacing             = 0.10
	DefaultMaxExhaustive       = 8
)

// Config holds layout parameters.
type Config struct {
	NumClusters    int // Labels requested from the partitioner
	MaxClusterSize int // Songs kept per cluster, closest to the root first

	// Adjacent clusters whose pushback is at most 1 - SimilarityThreshold
	// share a color family.
	SimilarityThreshold float64

	LegendAngle   float64 // Radians; the widest gap is centred here
	Spacing       float64 // Added to every pushback so no gap is zero
	MaxExhaustive int     // Above this many clusters ordering is greedy
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:         DefaultNumClusters,
		MaxClusterSize:      DefaultMaxClusterSize,
		SimilarityThreshold: DefaultSimilarityThreshold,
		LegendAngle:         DefaultLegendAngle,
		Spacing:             DefaultSpacing,
		MaxExhaustive:       DefaultMaxExhaustive,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NumClusters <= 0 {
		c.NumClusters = d.NumClusters
	}
	if c.MaxClusterSize <= 0 {
		c.MaxClusterSize = d.MaxClusterSize
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.Spacing <= 0 {
		c.Spacing = d.Spacing
	}
	if c.MaxExhaustive <= 0 {
		c.MaxExhaustive = d.MaxExhaustive
	}
	return c
}

// Color is a (family, hue) pair. Clusters in one family are drawn in shades
// of one color; hue 0 is the smallest cluster of the family.
type Color struct {
	Family int
	Hue    int
}

// Cluster is one group of songs with its layout.
type Cluster struct {
	Label   int          // Partition label the cluster was built from
	Songs   []graph.Song // Closest to the root first
	Ratings []float64    // Similarity of the root to each song

	CenterDistance float64 // Mean of 1 - rating over Songs
	Angle          float64 // Radians in [0, 2π)
	Color          Color
	Name           string // Optional display name, see NameClusters
}

// Size returns the number of songs in the cluster.
func (c Cluster) Size() int {
	return len(c.Songs)
}
