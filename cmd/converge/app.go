package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/config"
	"github.com/justestif/converge/internal/db"
	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
	"github.com/justestif/converge/internal/matrix"
	"github.com/justestif/converge/internal/store"
	"github.com/justestif/converge/internal/tags"
	"github.com/justestif/converge/internal/visualize"
)

// app is the wired dependency graph for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend graph.Backend
	lastfm  *lastfm.Client // nil without an API key
	graph   *graph.Store
}

// open loads the configuration and connects the graph backend. With
// needLastFM set, a missing Last.fm key is an error; otherwise the graph is
// opened read-only when no key is configured.
func (o *rootOptions) open(ctx context.Context, needLastFM bool) (*app, error) {
	cfg, err := config.Load(o.configPath, o.overrides)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lc, err := cfg.LastFMClientConfig()
	if err != nil && needLastFM {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  o.logger,
		backend: backend,
	}

	var rec graph.Recommender
	if lc != nil {
		a.lastfm = lastfm.NewClient(lc, lastfm.WithLogger(o.logger))
		rec = a.lastfm
	}
	a.graph = graph.NewStore(backend, rec, graph.WithLogger(o.logger))

	o.logger.Debug("opened graph", "driver", cfg.Database.Driver, "config", cfg.Path, "lastfm", lc != nil)
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (graph.Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		return pg, nil
	case config.DriverSQLite:
		s, err := store.NewStore(store.StoreConfig{DBPath: cfg.Database.Path})
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (a *app) Close() error {
	return a.backend.Close()
}

// visualizer wires the matrix builder, layout engine and optional Last.fm
// collaborators into a visualize.Service.
func (a *app) visualizer() *visualize.Service {
	builder := matrix.NewBuilder(a.graph, append(a.cfg.MatrixOptions(), matrix.WithLogger(a.logger))...)
	engine := clustering.NewEngine(a.cfg.LayoutEngineConfig(), clustering.WithLogger(a.logger))

	opts := []visualize.Option{
		visualize.WithMatrixLimit(a.cfg.Matrix.Limit),
		visualize.WithCrawlLimit(a.cfg.Crawl.Limit),
		visualize.WithExportDirs(a.cfg.Export.Dirs...),
		visualize.WithLogger(a.logger),
	}
	if a.lastfm != nil {
		opts = append(opts, visualize.WithCharts(a.lastfm))
		if a.cfg.Naming.Enabled {
			ts := tags.NewService(a.lastfm, tags.WithConcurrency(a.cfg.Naming.Concurrency))
			opts = append(opts, visualize.WithTags(ts))
		}
	}
	return visualize.New(a.graph, builder, engine, opts...)
}

// errNoSong wraps graph.ErrNotFound with a hint about crawling.
func errNoSong(title, artist string) error {
	return fmt.Errorf("%q by %q is not in the graph, run `converge crawl` first: %w", title, artist, graph.ErrNotFound)
}

func notFound(err error) bool {
	return errors.Is(err, graph.ErrNotFound)
}
