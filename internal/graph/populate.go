package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/justestif/converge/internal/lastfm"
)

// ErrNoRecommender is returned when a lookup is needed but the Store was built without one.
var ErrNoRecommender = errors.New("no recommender configured")

// EnsurePopulated makes sure the outgoing edges of (title, artist) are known.
// If the song has neither edges nor the empty marker, the recommender is
// called exactly once and its candidates are stored; otherwise nothing
// happens. Reports whether a lookup was made.
func (s *Store) EnsurePopulated(ctx context.Context, title, artist string) (bool, error) {
	song, err := s.ResolveOrCreate(ctx, title, artist)
	if err != nil {
		return false, err
	}

	known, err := s.backend.HasOutgoing(ctx, song.ID)
	if err != nil {
		return false, fmt.Errorf("checking similars of %s: %w", song, err)
	}
	if known {
		return false, nil
	}
	if s.recommender == nil {
		return false, fmt.Errorf("populating %s: %w", song, ErrNoRecommender)
	}

	s.logger.Info("looking up similar songs", "song_id", song.ID, "title", title, "artist", artist)
	candidates, err := s.recommender.GetSimilar(ctx, title, artist)
	if errors.Is(err, lastfm.ErrTrackNotFound) {
		s.logger.Debug("recommender does not know song", "song_id", song.ID)
		candidates = nil
	} else if err != nil {
		return false, fmt.Errorf("looking up similars of %s: %w", song, err)
	}

	edges := make([]Edge, 0, len(candidates))
	seen := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		other, err := s.ResolveOrCreate(ctx, c.Title, c.Artist)
		if err != nil {
			return false, fmt.Errorf("registering similar song: %w", err)
		}
		// Candidates that collapse onto the song itself or onto an earlier
		// candidate keep the first (highest) score.
		if other.ID == song.ID || seen[other.ID] {
			continue
		}
		seen[other.ID] = true
		edges = append(edges, Edge{
			From:       song.ID,
			To:         other.ID,
			Similarity: clamp01(c.Match),
		})
	}

	if len(edges) == 0 {
		if err := s.backend.MarkEmpty(ctx, song.ID); err != nil {
			return false, fmt.Errorf("marking %s empty: %w", song, err)
		}
		s.logger.Info("no similar songs known", "song_id", song.ID)
		return true, nil
	}

	if err := s.backend.UpsertSimilars(ctx, song.ID, edges); err != nil {
		return false, fmt.Errorf("storing similars of %s: %w", song, err)
	}
	s.logger.Info("stored similar songs", "song_id", song.ID, "count", len(edges))
	return true, nil
}

// Crawl populates the root song and then up to limit of its similars, so the
// matrix built around the root has rows to fill. Returns the number of
// recommender lookups made.
func (s *Store) Crawl(ctx context.Context, title, artist string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultCrawlLimit
	}

	lookups := 0
	looked, err := s.EnsurePopulated(ctx, title, artist)
	if err != nil {
		return lookups, err
	}
	if looked {
		lookups++
	}

	root, err := s.Resolve(ctx, title, artist)
	if err != nil {
		return lookups, err
	}
	similars, err := s.SortedSimilars(ctx, root.ID)
	if err != nil {
		return lookups, err
	}

	for i, sim := range similars {
		if i == limit {
			break
		}
		looked, err := s.EnsurePopulated(ctx, sim.Song.Title, sim.Song.Artist)
		if err != nil {
			return lookups, err
		}
		if looked {
			lookups++
		}
	}

	s.logger.Debug("crawl finished", "song_id", root.ID, "lookups", lookups)
	return lookups, nil
}

// SortedSimilarsBackfill crawls around (title, artist) before returning its
// similars, so every returned neighbour has its own edges populated.
func (s *Store) SortedSimilarsBackfill(ctx context.Context, title, artist string, limit int) (Song, []Similar, error) {
	if _, err := s.Crawl(ctx, title, artist, limit); err != nil {
		return Song{}, nil, err
	}
	root, err := s.Resolve(ctx, title, artist)
	if err != nil {
		return Song{}, nil, err
	}
	similars, err := s.SortedSimilars(ctx, root.ID)
	if err != nil {
		return Song{}, nil, err
	}
	return root, similars, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
