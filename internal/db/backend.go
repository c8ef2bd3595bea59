package db

import (
	"context"

	"github.com/justestif/converge/internal/graph"
)

// The methods below let *DB serve as a graph.Backend.

func (db *DB) FindSongs(ctx context.Context, title, artist string) ([]graph.Song, error) {
	return db.Songs().Find(ctx, title, artist)
}

func (db *DB) CreateSong(ctx context.Context, title, artist string) (graph.Song, error) {
	return db.Songs().Create(ctx, title, artist)
}

func (db *DB) GetSong(ctx context.Context, id int64) (*graph.Song, error) {
	return db.Songs().Get(ctx, id)
}

func (db *DB) AllSongs(ctx context.Context) ([]graph.Song, error) {
	return db.Songs().All(ctx)
}

func (db *DB) HasOutgoing(ctx context.Context, id int64) (bool, error) {
	return db.Edges().HasOutgoing(ctx, id)
}

func (db *DB) UpsertSimilars(ctx context.Context, from int64, edges []graph.Edge) error {
	return db.Edges().UpsertBatch(ctx, from, edges)
}

func (db *DB) MarkEmpty(ctx context.Context, id int64) error {
	return db.Edges().MarkEmpty(ctx, id)
}

func (db *DB) Similars(ctx context.Context, id int64) ([]graph.Similar, error) {
	return db.Edges().List(ctx, id)
}

func (db *DB) Similarity(ctx context.Context, from, to int64) (float64, bool, error) {
	return db.Edges().Get(ctx, from, to)
}

func (db *DB) Stats(ctx context.Context) (*graph.Stats, error) {
	return db.Edges().Stats(ctx)
}
