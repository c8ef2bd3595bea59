package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/justestif/converge/internal/graph"
)

// FindSongs returns songs matching title and artist, ordered by id.
// An empty artist matches any artist.
func (s *SQLiteStore) FindSongs(ctx context.Context, title, artist string) ([]graph.Song, error) {
	query := `SELECT id, title, artist FROM songs WHERE title = ? AND artist = ? ORDER BY id`
	args := []any{title, artist}
	if artist == "" {
		query = `SELECT id, title, artist FROM songs WHERE title = ? ORDER BY id`
		args = args[:1]
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	defer rows.Close()
	return scanSongs(rows)
}

// CreateSong inserts a song. Ids come from AUTOINCREMENT and are never reused.
func (s *SQLiteStore) CreateSong(ctx context.Context, title, artist string) (graph.Song, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (title, artist) VALUES (?, ?)`, title, artist)
	if err != nil {
		return graph.Song{}, fmt.Errorf("inserting song: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return graph.Song{}, fmt.Errorf("reading song id: %w", err)
	}
	return graph.Song{ID: id, Title: title, Artist: artist}, nil
}

// GetSong returns graph.ErrNotFound when id is unknown.
func (s *SQLiteStore) GetSong(ctx context.Context, id int64) (*graph.Song, error) {
	var song graph.Song
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist FROM songs WHERE id = ?`, id,
	).Scan(&song.ID, &song.Title, &song.Artist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying song: %w", err)
	}
	return &song, nil
}

// AllSongs returns every song ordered by id.
func (s *SQLiteStore) AllSongs(ctx context.Context) ([]graph.Song, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, artist FROM songs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	defer rows.Close()
	return scanSongs(rows)
}

func scanSongs(rows *sql.Rows) ([]graph.Song, error) {
	var songs []graph.Song
	for rows.Next() {
		var song graph.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist); err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating songs: %w", err)
	}
	return songs, nil
}
