// Package config loads converge settings. Values are layered: built-in
// defaults, then the YAML file, then environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justestif/converge/internal/auth"
	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
	"github.com/justestif/converge/internal/matrix"
	"github.com/justestif/converge/internal/store"
	"github.com/justestif/converge/internal/tags"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultAddr is the HTTP listen address.
const DefaultAddr = ":8080"

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // SQLite file
	URL    string `yaml:"url"`  // Postgres connection string
}

type LastFMConfig struct {
	APIKey         string        `yaml:"api_key"`
	MinInterval    time.Duration `yaml:"min_interval"`
	DecodeAttempts int           `yaml:"decode_attempts"`
}

type LayoutConfig struct {
	Clusters            int     `yaml:"clusters"`
	MaxClusterSize      int     `yaml:"max_cluster_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	LegendAngle         float64 `yaml:"legend_angle"`
	Spacing             float64 `yaml:"spacing"`
	MaxExhaustive       int     `yaml:"max_exhaustive"`
}

type MatrixConfig struct {
	Limit         int     `yaml:"limit"`
	MinSongs      int     `yaml:"min_songs"`
	NoInformation float64 `yaml:"no_information"`
	Backfill      bool    `yaml:"backfill"`
}

type CrawlConfig struct {
	Limit int `yaml:"limit"`
}

type NamingConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

type ExportConfig struct {
	Dirs []string `yaml:"dirs"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenPath    string `yaml:"token_path"`
}

// Config is the resolved configuration.
type Config struct {
	Path string `yaml:"-"` // File the config was read from, if any

	Database DatabaseConfig `yaml:"database"`
	LastFM   LastFMConfig   `yaml:"lastfm"`
	Layout   LayoutConfig   `yaml:"layout"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Naming   NamingConfig   `yaml:"naming"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
}

// Overrides carries flag values. Zero values leave the lower layers alone.
type Overrides struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	Addr        string
	Clusters    int
	ExportDirs  []string
}

// Default returns the built-in defaults.
func Default() *Config {
	lc := clustering.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   store.DefaultDBPath,
		},
		LastFM: LastFMConfig{
			MinInterval:    lastfm.DefaultMinInterval,
			DecodeAttempts: lastfm.DefaultDecodeAttempts,
		},
		Layout: LayoutConfig{
			Clusters:            lc.NumClusters,
			MaxClusterSize:      lc.MaxClusterSize,
			SimilarityThreshold: lc.SimilarityThreshold,
			LegendAngle:         lc.LegendAngle,
			Spacing:             lc.Spacing,
			MaxExhaustive:       lc.MaxExhaustive,
		},
		Matrix: MatrixConfig{
			Limit:         matrix.DefaultLimit,
			MinSongs:      matrix.MinSongs,
			NoInformation: matrix.NoInformation,
		},
		Crawl:  CrawlConfig{Limit: graph.DefaultCrawlLimit},
		Naming: NamingConfig{Concurrency: tags.DefaultConcurrency},
		Server: ServerConfig{Addr: DefaultAddr},
		Spotify: SpotifyConfig{
			RedirectURL: auth.DefaultRedirectURL,
			TokenPath:   auth.DefaultTokenPath,
		},
	}
}

// DefaultPath returns ~/.converge/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".converge", "config.yaml")
}

// Load resolves the configuration. An empty path reads DefaultPath and
// tolerates its absence; an explicit path must exist.
func Load(path string, o Overrides) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyOverrides(o)

	cfg.Database.Path = store.ExpandPath(cfg.Database.Path)
	cfg.Spotify.TokenPath = store.ExpandPath(cfg.Spotify.TokenPath)
	for i, dir := range cfg.Export.Dirs {
		cfg.Export.Dirs[i] = store.ExpandPath(dir)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) applyEnv() error {
	if lc, err := lastfm.LoadConfig(); err == nil {
		c.LastFM.APIKey = lc.APIKey
	}
	setString(&c.Database.Driver, "CONVERGE_DB_DRIVER")
	setString(&c.Database.Path, "CONVERGE_DB_PATH")
	setString(&c.Database.URL, "CONVERGE_DATABASE_URL")
	setString(&c.Server.Addr, "CONVERGE_ADDR")
	setString(&c.Spotify.ClientID, "SPOTIFY_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_SECRET")
	setString(&c.Spotify.TokenPath, "CONVERGE_SPOTIFY_TOKEN")

	if v := strings.TrimSpace(os.Getenv("CONVERGE_CLUSTERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CONVERGE_CLUSTERS: %w", err)
		}
		c.Layout.Clusters = n
	}
	return nil
}

func (c *Config) applyOverrides(o Overrides) {
	setIf(&c.Database.Driver, o.DBDriver)
	setIf(&c.Database.Path, o.DBPath)
	setIf(&c.Database.URL, o.DatabaseURL)
	setIf(&c.Server.Addr, o.Addr)
	if o.Clusters > 0 {
		c.Layout.Clusters = o.Clusters
	}
	if len(o.ExportDirs) > 0 {
		c.Export.Dirs = o.ExportDirs
	}
	// A database URL on its own selects Postgres.
	if o.DatabaseURL != "" && o.DBDriver == "" {
		c.Database.Driver = DriverPostgres
	}
}

func setString(dst *string, env string) {
	setIf(dst, os.Getenv(env))
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Validate reports every impossible value.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not sqlite or postgres", c.Database.Driver))
	}

	if c.LastFM.MinInterval < 0 {
		errs = append(errs, errors.New("lastfm.min_interval must not be negative"))
	}
	if c.LastFM.DecodeAttempts < 1 {
		errs = append(errs, errors.New("lastfm.decode_attempts must be at least 1"))
	}

	l := c.Layout
	if l.Clusters < 1 {
		errs = append(errs, errors.New("layout.clusters must be at least 1"))
	}
	if l.MaxClusterSize < 1 {
		errs = append(errs, errors.New("layout.max_cluster_size must be at least 1"))
	}
	if l.SimilarityThreshold < 0 || l.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("layout.similarity_threshold %v is outside [0, 1]", l.SimilarityThreshold))
	}
	if l.Spacing <= 0 {
		errs = append(errs, errors.New("layout.spacing must be positive"))
	}
	if l.MaxExhaustive < 1 {
		errs = append(errs, errors.New("layout.max_exhaustive must be at least 1"))
	}

	if c.Matrix.Limit < 1 {
		errs = append(errs, errors.New("matrix.limit must be at least 1"))
	}
	if c.Matrix.MinSongs < 1 {
		errs = append(errs, errors.New("matrix.min_songs must be at least 1"))
	}
	if c.Crawl.Limit < 1 {
		errs = append(errs, errors.New("crawl.limit must be at least 1"))
	}
	if c.Naming.Concurrency < 1 {
		errs = append(errs, errors.New("naming.concurrency must be at least 1"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	return errors.Join(errs...)
}

// LastFMClientConfig returns the Last.fm client settings, or
// lastfm.ErrMissingAPIKey when no key is configured.
func (c *Config) LastFMClientConfig() (*lastfm.Config, error) {
	if c.LastFM.APIKey == "" {
		return nil, lastfm.ErrMissingAPIKey
	}
	return &lastfm.Config{
		APIKey:         c.LastFM.APIKey,
		MinInterval:    c.LastFM.MinInterval,
		DecodeAttempts: c.LastFM.DecodeAttempts,
	}, nil
}

// LayoutEngineConfig returns the clustering settings.
func (c *Config) LayoutEngineConfig() clustering.Config {
	return clustering.Config{
		NumClusters:         c.Layout.Clusters,
		MaxClusterSize:      c.Layout.MaxClusterSize,
		SimilarityThreshold: c.Layout.SimilarityThreshold,
		LegendAngle:         c.Layout.LegendAngle,
		Spacing:             c.Layout.Spacing,
		MaxExhaustive:       c.Layout.MaxExhaustive,
	}
}

// MatrixOptions returns builder options for the matrix settings.
func (c *Config) MatrixOptions() []matrix.Option {
	opts := []matrix.Option{
		matrix.WithMinSongs(c.Matrix.MinSongs),
		matrix.WithNoInformation(c.Matrix.NoInformation),
	}
	if c.Matrix.Backfill {
		opts = append(opts, matrix.WithBackfill(c.Crawl.Limit))
	}
	return opts
}
