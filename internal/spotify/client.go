// Package spotify turns clusters into Spotify playlists.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// api is the subset of *spotify.Client used here.
type api interface {
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotify.FullPlaylist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error)
}

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api api
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(c *spotify.Client) *Client {
	return &Client{api: c}
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}
