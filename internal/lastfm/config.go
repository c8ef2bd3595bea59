// Package lastfm provides Last.fm API integration for similar-track lookups,
// chart and artist listings, and track tags.
package lastfm

import (
	"errors"
	"os"
	"time"
)

// ErrMissingAPIKey is returned when LASTFM_API_KEY is not set.
var ErrMissingAPIKey = errors.New("missing LASTFM_API_KEY environment variable")

const (
	// DefaultMinInterval is the minimum spacing between two outbound calls.
	DefaultMinInterval = time.Second

	// DefaultDecodeAttempts bounds how often a malformed response is re-requested.
	DefaultDecodeAttempts = 3
)

// Config holds Last.fm API configuration.
type Config struct {
	APIKey         string
	MinInterval    time.Duration // Zero means DefaultMinInterval
	DecodeAttempts int           // Zero means DefaultDecodeAttempts
}

// LoadConfig reads Last.fm configuration from environment variables.
// Returns ErrMissingAPIKey if LASTFM_API_KEY is not set.
func LoadConfig() (*Config, error) {
	apiKey := os.Getenv("LASTFM_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Config{
		APIKey:         apiKey,
		MinInterval:    DefaultMinInterval,
		DecodeAttempts: DefaultDecodeAttempts,
	}, nil
}
