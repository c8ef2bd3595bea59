// Package visualize runs the pipeline from a root song to exported cluster
// records: matrix, partition, layout, optional naming, and export.
package visualize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/export"
	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
	"github.com/justestif/converge/internal/matrix"
	"github.com/justestif/converge/internal/tags"
)

// ErrNoCharts is returned by batch operations when no chart source is configured.
var ErrNoCharts = errors.New("no chart source configured")

// artistTopTracksLimit is how many top tracks BatchArtist asks for.
const artistTopTracksLimit = 50

// Charts lists popular tracks. It is implemented by *lastfm.Client.
type Charts interface {
	GetTopTracks(ctx context.Context, limit int) ([]lastfm.SimilarTrack, error)
	GetArtistTopTracks(ctx context.Context, artist string, limit int) ([]lastfm.SimilarTrack, error)
}

// Result is one generated visualization.
type Result struct {
	ID       uuid.UUID
	Root     graph.Song
	Clusters []clustering.Cluster
	Records  []export.Record
	Files    []string // Written export files, if any
}

// Service handles visualization generation.
type Service struct {
	store       *graph.Store
	builder     *matrix.Builder
	engine      *clustering.Engine
	partitioner clustering.Partitioner
	tags        tags.TagService
	charts      Charts
	exportDirs  []string
	matrixLimit int
	crawlLimit  int
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPartitioner replaces the default k-means partitioner.
func WithPartitioner(p clustering.Partitioner) Option {
	return func(s *Service) {
		if p != nil {
			s.partitioner = p
		}
	}
}

// WithTags enables cluster naming from fetched tags.
func WithTags(t tags.TagService) Option {
	return func(s *Service) {
		s.tags = t
	}
}

// WithCharts sets the source used by BatchArtist and SeedPopular.
func WithCharts(c Charts) Option {
	return func(s *Service) {
		s.charts = c
	}
}

// WithExportDirs writes every generated visualization to each directory.
func WithExportDirs(dirs ...string) Option {
	return func(s *Service) {
		s.exportDirs = dirs
	}
}

// WithMatrixLimit caps the neighbourhood size of each matrix.
func WithMatrixLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.matrixLimit = n
		}
	}
}

// WithCrawlLimit sets how many similars are crawled around a root.
func WithCrawlLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.crawlLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a visualization service.
func New(store *graph.Store, builder *matrix.Builder, engine *clustering.Engine, opts ...Option) *Service {
	s := &Service{
		store:       store,
		builder:     builder,
		engine:      engine,
		partitioner: clustering.KMeansPartitioner{},
		matrixLimit: matrix.DefaultLimit,
		crawlLimit:  graph.DefaultCrawlLimit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithClusters returns a copy of s that asks the partitioner for k clusters.
func (s *Service) WithClusters(k int) *Service {
	if k <= 0 {
		return s
	}
	cfg := s.engine.Config()
	cfg.NumClusters = k
	cp := *s
	cp.engine = clustering.NewEngine(cfg, clustering.WithLogger(s.logger))
	return &cp
}

// Generate lays out the stored neighbourhood of (title, artist). It returns
// matrix.ErrInsufficientData when the song has too few similars and
// graph.ErrNotFound when the song is not stored.
func (s *Service) Generate(ctx context.Context, title, artist string) (*Result, error) {
	m, err := s.builder.Build(ctx, title, artist, s.matrixLimit)
	if err != nil {
		return nil, fmt.Errorf("building matrix: %w", err)
	}
	root, err := s.store.Resolve(ctx, title, artist)
	if err != nil {
		return nil, err
	}

	cs, err := s.engine.Run(m, s.partitioner)
	if err != nil {
		return nil, fmt.Errorf("laying out %s: %w", root, err)
	}

	if s.tags != nil {
		if err := s.name(ctx, cs); err != nil {
			return nil, err
		}
	}

	result := &Result{
		ID:       uuid.New(),
		Root:     root,
		Clusters: cs,
		Records:  export.FromClusters(cs),
	}

	if len(s.exportDirs) > 0 {
		files, err := export.WriteFiles(s.exportDirs, root.Title, root.Artist, result.Records)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", root, err)
		}
		result.Files = files
	}

	s.logger.Info("generated visualization",
		"visualization_id", result.ID, "song_id", root.ID, "clusters", len(cs))
	return result, nil
}

// name fetches tags for the sampled songs of every cluster and names the
// clusters after them. Failed lookups leave a cluster named "Mixed".
func (s *Service) name(ctx context.Context, cs []clustering.Cluster) error {
	var songs []graph.Song
	for _, c := range cs {
		songs = append(songs, c.Songs[:min(clustering.NameSampleSize, len(c.Songs))]...)
	}

	results, err := s.tags.FetchTagsForSongs(ctx, songs)
	if err != nil {
		return fmt.Errorf("fetching tags: %w", err)
	}
	for _, r := range results {
		if r.Error != nil {
			s.logger.Warn("tag lookup failed", "song_id", r.SongID, "error", r.Error)
		}
	}

	clustering.NameClusters(cs, tags.ByID(results), clustering.NameSampleSize)
	return nil
}

// GenerateFromAnywhere crawls around (title, artist) first, so songs never
// seen before can be laid out.
func (s *Service) GenerateFromAnywhere(ctx context.Context, title, artist string) (*Result, error) {
	title, artist = graph.Canonicalize(title, artist)
	if _, err := s.store.Crawl(ctx, title, artist, s.crawlLimit); err != nil {
		return nil, fmt.Errorf("crawling: %w", err)
	}
	return s.Generate(ctx, title, artist)
}

// BatchArtist walks the artist's top tracks, most popular first, until n
// visualizations were generated or the tracks run out. Songs without enough
// data are skipped.
func (s *Service) BatchArtist(ctx context.Context, artist string, n int) ([]*Result, error) {
	if s.charts == nil {
		return nil, ErrNoCharts
	}
	tracks, err := s.charts.GetArtistTopTracks(ctx, artist, artistTopTracksLimit)
	if err != nil {
		return nil, fmt.Errorf("listing top tracks: %w", err)
	}

	var results []*Result
	for _, t := range tracks {
		if n > 0 && len(results) == n {
			break
		}
		r, err := s.GenerateFromAnywhere(ctx, t.Title, artist)
		if errors.Is(err, matrix.ErrInsufficientData) {
			s.logger.Info("not enough data, skipping", "title", t.Title, "artist", artist)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}

	s.logger.Info("batch finished", "artist", artist, "generated", len(results), "wanted", n)
	return results, nil
}

// BatchStored generates visualizations for stored songs that already have at
// least minSimilars similars, stopping after n when n > 0.
func (s *Service) BatchStored(ctx context.Context, minSimilars, n int) ([]*Result, error) {
	songs, err := s.store.Songs(ctx)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, song := range songs {
		if n > 0 && len(results) == n {
			break
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		similars, err := s.store.SortedSimilars(ctx, song.ID)
		if err != nil {
			return results, err
		}
		if len(similars) < minSimilars {
			continue
		}

		r, err := s.Generate(ctx, song.Title, song.Artist)
		if errors.Is(err, matrix.ErrInsufficientData) {
			s.logger.Info("not enough data, skipping", "song_id", song.ID)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// SeedPopular crawls every track on the global chart. Returns the number of
// recommender lookups made.
func (s *Service) SeedPopular(ctx context.Context) (int, error) {
	if s.charts == nil {
		return 0, ErrNoCharts
	}
	tracks, err := s.charts.GetTopTracks(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("listing chart: %w", err)
	}

	lookups := 0
	for _, t := range tracks {
		n, err := s.store.Crawl(ctx, t.Title, t.Artist, s.crawlLimit)
		lookups += n
		if err != nil {
			return lookups, err
		}
	}
	s.logger.Info("seeded popular songs", "tracks", len(tracks), "lookups", lookups)
	return lookups, nil
}
