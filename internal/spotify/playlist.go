package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/graph"
)

const maxTracksPerRequest = 100

// CreatePlaylist creates a new playlist for the current user.
// Returns the playlist ID.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}

	return playlist.ID.String(), nil
}

// AddTracksToPlaylist adds tracks to a playlist, handling batching for large sets.
// Spotify allows max 100 tracks per request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		batch := ids[i:end]

		_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
		if err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, err)
		}
	}

	return nil
}

// PlaylistFromCluster matches every song of c on Spotify and saves the
// matches as a private playlist named after the root and the cluster.
// Songs without a match are reported, not fatal. No playlist is created when
// nothing matched.
func (c *Client) PlaylistFromCluster(ctx context.Context, root graph.Song, cl clustering.Cluster) (*PlaylistResult, error) {
	result := &PlaylistResult{Name: playlistName(root, cl)}

	for _, song := range cl.Songs {
		track, ok, err := c.FindTrack(ctx, song)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Missing = append(result.Missing, song)
			continue
		}
		result.Tracks = append(result.Tracks, track)
	}
	if len(result.Tracks) == 0 {
		return result, nil
	}

	description := fmt.Sprintf("%d songs near %s", len(result.Tracks), root)
	id, err := c.CreatePlaylist(ctx, result.Name, description, false)
	if err != nil {
		return nil, err
	}
	result.ID = id

	ids := make([]string, len(result.Tracks))
	for i, t := range result.Tracks {
		ids[i] = t.ID
	}
	if err := c.AddTracksToPlaylist(ctx, id, ids); err != nil {
		return nil, err
	}
	return result, nil
}

func playlistName(root graph.Song, cl clustering.Cluster) string {
	name := fmt.Sprintf("%s - %s", root.Title, root.Artist)
	if cl.Name != "" {
		name += " (" + cl.Name + ")"
	}
	return name
}
