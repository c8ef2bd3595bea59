package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/converge/internal/graph"
)

// SongRepository handles song identity operations.
type SongRepository struct {
	pool *pgxpool.Pool
}

// Find returns songs matching title and artist, ordered by id.
// An empty artist matches any artist.
func (r *SongRepository) Find(ctx context.Context, title, artist string) ([]graph.Song, error) {
	query := `
		SELECT id, title, artist
		FROM songs
		WHERE title = $1 AND ($2 = '' OR artist = $2)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, title, artist)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	return collectSongs(rows)
}

// Create inserts a song; the identity column assigns the id.
func (r *SongRepository) Create(ctx context.Context, title, artist string) (graph.Song, error) {
	query := `
		INSERT INTO songs (title, artist)
		VALUES ($1, $2)
		RETURNING id
	`
	song := graph.Song{Title: title, Artist: artist}
	if err := r.pool.QueryRow(ctx, query, title, artist).Scan(&song.ID); err != nil {
		return graph.Song{}, fmt.Errorf("inserting song: %w", err)
	}
	return song, nil
}

// Get retrieves a song by id.
func (r *SongRepository) Get(ctx context.Context, id int64) (*graph.Song, error) {
	query := `SELECT id, title, artist FROM songs WHERE id = $1`

	var song graph.Song
	err := r.pool.QueryRow(ctx, query, id).Scan(&song.ID, &song.Title, &song.Artist)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying song: %w", err)
	}
	return &song, nil
}

// All retrieves every song ordered by id.
func (r *SongRepository) All(ctx context.Context) ([]graph.Song, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, artist FROM songs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	return collectSongs(rows)
}

func collectSongs(rows pgx.Rows) ([]graph.Song, error) {
	songs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Song, error) {
		var song graph.Song
		err := row.Scan(&song.ID, &song.Title, &song.Artist)
		return song, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning songs: %w", err)
	}
	return songs, nil
}
