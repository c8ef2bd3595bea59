package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL   = "http://ws.audioscrobbler.com/2.0/"
	userAgent = "converge/1.0"
)

// Last.fm API error codes.
const (
	errCodeInvalidParams = 6
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrTrackNotFound is returned when Last.fm does not know the requested track or artist.
	ErrTrackNotFound = errors.New("track not found")

	// ErrUpstreamDecode is returned when responses stay unparsable after all decode attempts.
	ErrUpstreamDecode = errors.New("malformed upstream response")
)

// Client is a Last.fm API client with throttling and bounded retries.
//
// Every outbound request waits on the client's limiter, so successive calls
// are spaced by at least the configured minimum interval.
type Client struct {
	apiKey         string
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
	decodeAttempts int
	retryDelays    []time.Duration
	logger         *slog.Logger

	// In-memory tag cache: key = "track:{artist}:{title}" or "artist:{artist}"
	cache   map[string][]Tag
	cacheMu sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new Last.fm API client from the provided configuration.
func NewClient(cfg *Config, opts ...Option) *Client {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	attempts := cfg.DecodeAttempts
	if attempts <= 0 {
		attempts = DefaultDecodeAttempts
	}

	c := &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:        baseURL,
		limiter:        rate.NewLimiter(rate.Every(interval), 1),
		decodeAttempts: attempts,
		retryDelays:    []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		logger:         slog.Default(),
		cache:          make(map[string][]Tag),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSimilar returns the tracks Last.fm considers similar to (title, artist),
// ordered by descending match. An empty slice is a valid answer.
func (c *Client) GetSimilar(ctx context.Context, title, artist string) ([]SimilarTrack, error) {
	params := url.Values{
		"method":      {"track.getSimilar"},
		"artist":      {artist},
		"track":       {title},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}

	var tracks []SimilarTrack
	err := c.fetch(ctx, params, func(body []byte) error {
		var resp similarTracksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		if resp.SimilarTracks == nil {
			return errors.New("missing similartracks object")
		}
		tracks = convertTracks(resp.SimilarTracks.Track)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching similar tracks for %q by %q: %w", title, artist, err)
	}
	return tracks, nil
}

// GetTopTracks returns the global Last.fm chart. Tracks carry the default match.
func (c *Client) GetTopTracks(ctx context.Context, limit int) ([]SimilarTrack, error) {
	params := url.Values{
		"method":  {"chart.getTopTracks"},
		"format":  {"json"},
		"api_key": {c.apiKey},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var tracks []SimilarTrack
	err := c.fetch(ctx, params, func(body []byte) error {
		var resp chartTopTracksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		if resp.Tracks == nil {
			return errors.New("missing tracks object")
		}
		tracks = convertTracks(resp.Tracks.Track)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching chart top tracks: %w", err)
	}
	return tracks, nil
}

// GetArtistTopTracks returns an artist's most popular tracks, most popular first.
func (c *Client) GetArtistTopTracks(ctx context.Context, artist string, limit int) ([]SimilarTrack, error) {
	params := url.Values{
		"method":      {"artist.getTopTracks"},
		"artist":      {artist},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var tracks []SimilarTrack
	err := c.fetch(ctx, params, func(body []byte) error {
		var resp artistTopTracksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		if resp.TopTracks == nil {
			return errors.New("missing toptracks object")
		}
		tracks = convertTracks(resp.TopTracks.Track)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks for %q: %w", artist, err)
	}
	return tracks, nil
}

// fetch performs a request and hands the body to decode. Bodies that fail to
// decode are re-requested up to decodeAttempts times before ErrUpstreamDecode.
func (c *Client) fetch(ctx context.Context, params url.Values, decode func([]byte) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.decodeAttempts; attempt++ {
		body, err := c.doRequest(ctx, params)
		if err != nil {
			return err
		}

		if err := decode(body); err != nil {
			lastErr = err
			c.logger.Warn("malformed Last.fm response",
				"method", params.Get("method"),
				"attempt", attempt,
				"max_attempts", c.decodeAttempts,
				"error", err,
			)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUpstreamDecode, params.Get("method"), c.decodeAttempts, lastErr)
}

// doRequest performs an HTTP GET request with retry on rate limit.
// Retries once per entry in retryDelays (1s, 2s, 4s by default).
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error

	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelays[attempt-1]):
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}

		// Check if we should retry
		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}

		// Non-retryable error
		return nil, err
	}

	return nil, lastErr
}

// doSingleRequest waits for the limiter and performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	// Check for API error in response
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		switch apiErr.Error {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		case errCodeInvalidParams:
			return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, apiErr.Message)
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Error, apiErr.Message)
		}
	}

	return body, nil
}
