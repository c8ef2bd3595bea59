// Package graph maintains the persistent, directed song-similarity graph.
//
// Songs are identified by their lower-cased (title, artist) pair and carry a
// stable integer id. Edges are populated lazily from the recommender: a song
// is looked up at most once, and a song with no similars is recorded with an
// explicit empty marker so it is never looked up again.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/justestif/converge/internal/lastfm"
)

// Common errors.
var (
	// ErrNotFound is returned when no stored song matches the requested identity.
	ErrNotFound = errors.New("song not found")

	// ErrIntegrity is returned when one (title, artist) resolves to several ids.
	ErrIntegrity = errors.New("non-unique song identity")
)

// DefaultCrawlLimit is how many of a root's similars Crawl populates.
const DefaultCrawlLimit = 50

// Song is a canonical song identity.
type Song struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func (s Song) String() string {
	return fmt.Sprintf("%q by %q", s.Title, s.Artist)
}

// Edge is a directed similarity from one song to another.
type Edge struct {
	From       int64
	To         int64
	Similarity float64
}

// Similar is a one-hop neighbour of a song.
type Similar struct {
	Song       Song    `json:"song"`
	Similarity float64 `json:"similarity"`
}

// Bound is an inferred lower bound on the similarity to a two-hop neighbour.
type Bound struct {
	Song  Song    `json:"song"`
	Bound float64 `json:"bound"`
}

// Stats summarizes the stored graph.
type Stats struct {
	Songs   int64 `json:"songs"`
	Edges   int64 `json:"edges"`
	Empty   int64 `json:"empty"`
	Crawled int64 `json:"crawled"`
}

// Backend is the persistence layer behind a Store.
// Titles and artists passed to a Backend are already canonical.
type Backend interface {
	// FindSongs returns songs matching title and artist, ordered by id.
	// An empty artist matches any artist.
	FindSongs(ctx context.Context, title, artist string) ([]Song, error)
	// CreateSong inserts a song with the next unused id.
	CreateSong(ctx context.Context, title, artist string) (Song, error)
	// GetSong returns ErrNotFound when id is unknown.
	GetSong(ctx context.Context, id int64) (*Song, error)
	AllSongs(ctx context.Context) ([]Song, error)

	// HasOutgoing reports whether any similars row (edge or empty marker) exists for id.
	HasOutgoing(ctx context.Context, id int64) (bool, error)
	// UpsertSimilars inserts edges, replacing the similarity of existing (from, to) pairs.
	UpsertSimilars(ctx context.Context, from int64, edges []Edge) error
	// MarkEmpty records that id has no similars. Calling it twice is a no-op.
	MarkEmpty(ctx context.Context, id int64) error
	// Similars returns the outgoing edges of id joined with the target songs,
	// highest similarity first. The empty marker is never returned.
	Similars(ctx context.Context, id int64) ([]Similar, error)
	// Similarity returns the similarity of the edge from -> to, if stored.
	Similarity(ctx context.Context, from, to int64) (float64, bool, error)

	// Stats counts songs, edges, empty markers, and songs whose similars are known.
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Recommender looks up similar songs. It is implemented by *lastfm.Client.
type Recommender interface {
	GetSimilar(ctx context.Context, title, artist string) ([]lastfm.SimilarTrack, error)
}

// Store is the similarity graph: song registry plus edges.
type Store struct {
	backend     Backend
	recommender Recommender
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store over backend. recommender may be nil for read-only
// use; EnsurePopulated then fails for songs that were never looked up.
func NewStore(backend Backend, recommender Recommender, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		recommender: recommender,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying persistence layer.
func (s *Store) Backend() Backend {
	return s.backend
}

// Canonicalize returns the stored form of a (title, artist) pair.
func Canonicalize(title, artist string) (string, string) {
	return strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(artist))
}

// ResolveOrCreate returns the song for (title, artist), inserting it if absent.
func (s *Store) ResolveOrCreate(ctx context.Context, title, artist string) (Song, error) {
	title, artist = Canonicalize(title, artist)
	if title == "" || artist == "" {
		return Song{}, fmt.Errorf("resolving song: title and artist are required")
	}

	songs, err := s.backend.FindSongs(ctx, title, artist)
	if err != nil {
		return Song{}, fmt.Errorf("looking up %q by %q: %w", title, artist, err)
	}
	switch len(songs) {
	case 0:
		song, err := s.backend.CreateSong(ctx, title, artist)
		if err != nil {
			return Song{}, fmt.Errorf("creating %q by %q: %w", title, artist, err)
		}
		s.logger.Debug("registered song", "song_id", song.ID, "title", title, "artist", artist)
		return song, nil
	case 1:
		return songs[0], nil
	default:
		return Song{}, fmt.Errorf("%w: %d ids for %q by %q", ErrIntegrity, len(songs), title, artist)
	}
}

// Resolve looks up a stored song without creating it. An empty artist matches
// the first song with that title.
func (s *Store) Resolve(ctx context.Context, title, artist string) (Song, error) {
	title, artist = Canonicalize(title, artist)

	songs, err := s.backend.FindSongs(ctx, title, artist)
	if err != nil {
		return Song{}, fmt.Errorf("looking up %q by %q: %w", title, artist, err)
	}
	if len(songs) == 0 {
		return Song{}, fmt.Errorf("%w: %q by %q", ErrNotFound, title, artist)
	}
	if len(songs) > 1 && artist != "" {
		return Song{}, fmt.Errorf("%w: %d ids for %q by %q", ErrIntegrity, len(songs), title, artist)
	}
	return songs[0], nil
}

// Song returns the stored song with the given id.
func (s *Store) Song(ctx context.Context, id int64) (Song, error) {
	song, err := s.backend.GetSong(ctx, id)
	if err != nil {
		return Song{}, fmt.Errorf("getting song %d: %w", id, err)
	}
	return *song, nil
}

// Songs returns every stored song ordered by id.
func (s *Store) Songs(ctx context.Context) ([]Song, error) {
	songs, err := s.backend.AllSongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return songs, nil
}

// Stats returns counts over the stored graph.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading graph stats: %w", err)
	}
	return st, nil
}

// SortedSimilars returns the known similars of id, highest similarity first.
// Unknown songs and songs marked empty both yield an empty slice.
func (s *Store) SortedSimilars(ctx context.Context, id int64) ([]Similar, error) {
	similars, err := s.backend.Similars(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading similars of %d: %w", id, err)
	}
	return similars, nil
}
