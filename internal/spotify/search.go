package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/converge/internal/graph"
)

// FindTrack searches Spotify for a song. ok is false when nothing matched.
func (c *Client) FindTrack(ctx context.Context, song graph.Song) (Track, bool, error) {
	result, err := c.api.Search(ctx, searchQuery(song), spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return Track{}, false, fmt.Errorf("searching for %s: %w", song, err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return Track{}, false, nil
	}
	return convertTrack(result.Tracks.Tracks[0]), true, nil
}

// searchQuery builds a field-filtered query. Quotes inside values would end
// the filter early, so they are dropped.
func searchQuery(song graph.Song) string {
	clean := func(s string) string {
		return strings.ReplaceAll(s, `"`, "")
	}
	return fmt.Sprintf(`track:"%s" artist:"%s"`, clean(song.Title), clean(song.Artist))
}

// convertTrack converts a Spotify FullTrack to a Track.
func convertTrack(t spotify.FullTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return Track{
		ID:     t.ID.String(),
		Name:   t.Name,
		Artist: strings.Join(artists, ", "),
	}
}
