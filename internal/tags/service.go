// Package tags fetches Last.fm tags for songs in the similarity graph. The
// tags only feed cluster names.
package tags

import (
	"context"
	"sync"

	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
)

// TagSource indicates where the tags came from.
type TagSource string

const (
	// SourceLastFM means Last.fm returned tags for the song or its artist.
	SourceLastFM TagSource = "lastfm"
	// SourceNone means no tags were found.
	SourceNone TagSource = "none"
)

// Default concurrency for batch processing.
const DefaultConcurrency = 5

// SongTags holds the tags fetched for a song.
type SongTags struct {
	SongID int64
	Tags   []lastfm.Tag
	Source TagSource
	Error  error // Non-nil if fetching failed
}

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	GetTags(ctx context.Context, title, artist string) ([]lastfm.Tag, error)
}

// TagService defines the interface for fetching tags for songs.
type TagService interface {
	FetchTagsForSongs(ctx context.Context, songs []graph.Song) ([]SongTags, error)
}

// Service implements TagService using Last.fm as the tag source.
type Service struct {
	fetcher     TagFetcher
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the number of concurrent tag fetch operations.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new tag service.
func NewService(fetcher TagFetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTagsForSongs fetches tags for multiple songs concurrently.
// Results are returned in the same order as input songs.
// Individual fetch errors are captured in SongTags.Error rather than failing the batch.
func (s *Service) FetchTagsForSongs(ctx context.Context, songs []graph.Song) ([]SongTags, error) {
	if len(songs) == 0 {
		return []SongTags{}, nil
	}

	results := make([]SongTags, len(songs))

	type workItem struct {
		index int
		song  graph.Song
	}
	workCh := make(chan workItem, len(songs))
	for i, song := range songs {
		workCh <- workItem{index: i, song: song}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < min(s.concurrency, len(songs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if ctx.Err() != nil {
					results[work.index] = SongTags{
						SongID: work.song.ID,
						Tags:   []lastfm.Tag{},
						Source: SourceNone,
						Error:  ctx.Err(),
					}
					continue
				}

				tags, err := s.fetcher.GetTags(ctx, work.song.Title, work.song.Artist)
				result := SongTags{
					SongID: work.song.ID,
					Tags:   tags,
					Source: SourceLastFM,
					Error:  err,
				}
				if err != nil {
					result.Tags = []lastfm.Tag{}
				}
				if len(result.Tags) == 0 {
					result.Source = SourceNone
				}

				results[work.index] = result
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

// ByID converts fetched tags into the form cluster naming expects. Songs that
// failed or had no tags are left out.
func ByID(results []SongTags) map[int64][]clustering.Tag {
	out := make(map[int64][]clustering.Tag, len(results))
	for _, r := range results {
		if r.Error != nil || len(r.Tags) == 0 {
			continue
		}
		tags := make([]clustering.Tag, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = clustering.Tag{Name: t.Name, Count: t.Count}
		}
		out[r.SongID] = tags
	}
	return out
}
