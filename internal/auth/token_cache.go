// Package auth signs the operator in to Spotify so clusters can be saved as
// playlists. Tokens are cached next to the converge database.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/justestif/converge/internal/store"
)

// DefaultTokenPath is where the token is cached unless configured otherwise.
const DefaultTokenPath = "~/.converge/spotify-token.json"

// cachedToken ties a token to the Spotify app that issued it.
type cachedToken struct {
	ClientID string        `json:"client_id"`
	Token    *oauth2.Token `json:"token"`
}

// TokenCache keeps one OAuth token on disk.
type TokenCache struct {
	path string
}

// NewTokenCache returns a cache at path, expanded like the database path.
// An empty path selects DefaultTokenPath.
func NewTokenCache(path string) *TokenCache {
	if path == "" {
		path = DefaultTokenPath
	}
	return &TokenCache{path: store.ExpandPath(path)}
}

func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the token cached for clientID. A missing file or a token
// issued to another app yields (nil, nil).
func (c *TokenCache) Load(clientID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}

	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.path, err)
	}
	if ct.ClientID != clientID || ct.Token == nil {
		return nil, nil
	}
	return ct.Token, nil
}

// Save stores token for clientID, replacing the file atomically. The file
// is readable by the owner only.
func (c *TokenCache) Save(clientID string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("saving token: nil token")
	}

	data, err := json.MarshalIndent(cachedToken{ClientID: clientID, Token: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".spotify-token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	// CreateTemp already uses 0600.
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing %s: %w", c.path, err)
	}
	return nil
}

// Delete removes the cached token. A missing file is not an error.
func (c *TokenCache) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", c.path, err)
	}
	return nil
}
