package spotify

import "github.com/justestif/converge/internal/graph"

// Track is a Spotify track matched to a song.
type Track struct {
	ID     string
	Name   string
	Artist string // Comma-separated artist names
}

// PlaylistResult describes a playlist created from a cluster.
type PlaylistResult struct {
	ID      string
	Name    string
	Tracks  []Track
	Missing []graph.Song // Songs with no Spotify match
}
