// Package matrix builds the dense dissimilarity matrix over a root song's
// neighbourhood that the partitioner and layout engine consume.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justestif/converge/internal/graph"
)

// ErrInsufficientData is returned when a root has too few similars to cluster.
var ErrInsufficientData = errors.New("insufficient similar songs")

const (
	// MinSongs is the smallest neighbourhood worth clustering.
	MinSongs = 5

	// DefaultLimit caps the neighbourhood size.
	DefaultLimit = 50

	// NoInformation fills cells for pairs with no stored edge.
	NoInformation = 0.0
)

// Matrix is a square dissimilarity matrix with parallel song and rating slices.
// Values[i][j] is 1 - similarity(Songs[i] -> Songs[j]); Ratings[i] is the
// similarity of the root to Songs[i]. Songs are ordered by descending rating.
type Matrix struct {
	Values  [][]float64
	Songs   []graph.Song
	Ratings []float64
}

// Len returns the number of songs in the matrix.
func (m *Matrix) Len() int {
	return len(m.Songs)
}

// Builder builds matrices from a graph.Store.
type Builder struct {
	store         *graph.Store
	minSongs      int
	noInformation float64
	backfill      int
	logger        *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithMinSongs overrides MinSongs.
func WithMinSongs(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.minSongs = n
		}
	}
}

// WithNoInformation sets the value of cells with no known edge.
func WithNoInformation(v float64) Option {
	return func(b *Builder) {
		b.noInformation = v
	}
}

// WithBackfill makes Build crawl the root and up to limit of its similars
// before reading the neighbourhood. Requires a Store with a recommender.
func WithBackfill(limit int) Option {
	return func(b *Builder) {
		b.backfill = limit
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder reading from store.
func NewBuilder(store *graph.Store, opts ...Option) *Builder {
	b := &Builder{
		store:         store,
		minSongs:      MinSongs,
		noInformation: NoInformation,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the dissimilarity matrix over the similars of (title, artist),
// keeping at most limit of them when limit > 0. Cells are filled only from
// each song's own outgoing edges; the result is not symmetrized.
func (b *Builder) Build(ctx context.Context, title, artist string, limit int) (*Matrix, error) {
	root, similars, err := b.neighbourhood(ctx, title, artist)
	if err != nil {
		return nil, err
	}

	if len(similars) < b.minSongs {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientData, root, len(similars), b.minSongs)
	}
	if limit > 0 && len(similars) > limit {
		b.logger.Debug("truncating neighbourhood", "song_id", root.ID, "found", len(similars), "limit", limit)
		similars = similars[:limit]
	}

	n := len(similars)
	m := &Matrix{
		Values:  make([][]float64, n),
		Songs:   make([]graph.Song, n),
		Ratings: make([]float64, n),
	}
	index := make(map[int64]int, n)
	for i, sim := range similars {
		m.Songs[i] = sim.Song
		m.Ratings[i] = sim.Similarity
		index[sim.Song.ID] = i

		row := make([]float64, n)
		for j := range row {
			if j != i {
				row[j] = b.noInformation
			}
		}
		m.Values[i] = row
	}

	for i, song := range m.Songs {
		edges, err := b.store.SortedSimilars(ctx, song.ID)
		if err != nil {
			return nil, fmt.Errorf("filling row for %s: %w", song, err)
		}
		for _, e := range edges {
			j, ok := index[e.Song.ID]
			if !ok || j == i {
				continue
			}
			m.Values[i][j] = 1 - e.Similarity
		}
	}

	b.logger.Debug("built similarity matrix", "song_id", root.ID, "songs", n)
	return m, nil
}

func (b *Builder) neighbourhood(ctx context.Context, title, artist string) (graph.Song, []graph.Similar, error) {
	if b.backfill > 0 {
		root, similars, err := b.store.SortedSimilarsBackfill(ctx, title, artist, b.backfill)
		if err != nil {
			return graph.Song{}, nil, fmt.Errorf("backfilling neighbourhood: %w", err)
		}
		return root, similars, nil
	}

	root, err := b.store.Resolve(ctx, title, artist)
	if err != nil {
		return graph.Song{}, nil, err
	}
	similars, err := b.store.SortedSimilars(ctx, root.ID)
	if err != nil {
		return graph.Song{}, nil, err
	}
	return root, similars, nil
}
