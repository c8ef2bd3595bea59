package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// GetTags fetches tags for a track, falling back to artist tags if track has none.
// Results are cached in memory. Returns an empty slice (not nil) if no tags are found.
func (c *Client) GetTags(ctx context.Context, title, artist string) ([]Tag, error) {
	tags, err := c.getTrackTags(ctx, title, artist)
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		return tags, nil
	}

	return c.getArtistTags(ctx, artist)
}

// getTrackTags fetches tags for a specific track (with caching).
func (c *Client) getTrackTags(ctx context.Context, title, artist string) ([]Tag, error) {
	cacheKey := fmt.Sprintf("track:%s:%s", strings.ToLower(artist), strings.ToLower(title))
	if cached, ok := c.cachedTags(cacheKey); ok {
		return cached, nil
	}

	params := url.Values{
		"method":      {"track.getTopTags"},
		"artist":      {artist},
		"track":       {title},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}

	var tags []Tag
	err := c.fetch(ctx, params, func(body []byte) error {
		var resp trackTagsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		tags = resp.TopTags.Tag
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching track tags: %w", err)
	}

	return c.storeTags(cacheKey, tags), nil
}

// getArtistTags fetches tags for an artist (with caching).
func (c *Client) getArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	cacheKey := fmt.Sprintf("artist:%s", strings.ToLower(artist))
	if cached, ok := c.cachedTags(cacheKey); ok {
		return cached, nil
	}

	params := url.Values{
		"method":      {"artist.getTopTags"},
		"artist":      {artist},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}

	var tags []Tag
	err := c.fetch(ctx, params, func(body []byte) error {
		var resp artistTagsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		tags = resp.TopTags.Tag
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching artist tags: %w", err)
	}

	return c.storeTags(cacheKey, tags), nil
}

func (c *Client) cachedTags(key string) ([]Tag, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	tags, ok := c.cache[key]
	return tags, ok
}

func (c *Client) storeTags(key string, tags []Tag) []Tag {
	if tags == nil {
		tags = []Tag{}
	}
	c.cacheMu.Lock()
	c.cache[key] = tags
	c.cacheMu.Unlock()
	return tags
}
