package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/converge/internal/graph"
)

// EdgeRepository handles similarity edge operations.
type EdgeRepository struct {
	pool *pgxpool.Pool
}

// HasOutgoing reports whether any row, edge or empty marker, exists for id.
func (r *EdgeRepository) HasOutgoing(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM similars WHERE from_id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking similars: %w", err)
	}
	return exists, nil
}

// UpsertBatch inserts or updates the edges leaving from, clearing its empty
// marker in the same transaction.
func (r *EdgeRepository) UpsertBatch(ctx context.Context, from int64, edges []graph.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	toIDs, sims := edgeColumns(edges)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM similars WHERE from_id = $1 AND to_id IS NULL`, from); err != nil {
		return fmt.Errorf("clearing empty marker: %w", err)
	}

	query := `
		INSERT INTO similars (from_id, to_id, similarity, fetched_at)
		SELECT $1::bigint, u.to_id, u.similarity, NOW()
		FROM unnest($2::bigint[], $3::float8[]) AS u(to_id, similarity)
		ON CONFLICT (from_id, to_id) DO UPDATE SET
			similarity = EXCLUDED.similarity,
			fetched_at = EXCLUDED.fetched_at
	`
	if _, err := tx.Exec(ctx, query, from, toIDs, sims); err != nil {
		return fmt.Errorf("batch upserting similars: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing similars: %w", err)
	}
	return nil
}

// MarkEmpty inserts the empty marker for id unless one already exists.
func (r *EdgeRepository) MarkEmpty(ctx context.Context, id int64) error {
	query := `
		INSERT INTO similars (from_id, to_id, similarity, fetched_at)
		VALUES ($1, NULL, NULL, NOW())
		ON CONFLICT DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("inserting empty marker: %w", err)
	}
	return nil
}

// List retrieves the edges leaving id joined with their targets, highest
// similarity first.
func (r *EdgeRepository) List(ctx context.Context, id int64) ([]graph.Similar, error) {
	query := `
		SELECT s.id, s.title, s.artist, x.similarity
		FROM similars x
		JOIN songs s ON s.id = x.to_id
		WHERE x.from_id = $1 AND x.to_id IS NOT NULL
		ORDER BY x.similarity DESC, s.id
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying similars: %w", err)
	}
	defer rows.Close()

	var similars []graph.Similar
	for rows.Next() {
		var sim graph.Similar
		if err := rows.Scan(&sim.Song.ID, &sim.Song.Title, &sim.Song.Artist, &sim.Similarity); err != nil {
			return nil, fmt.Errorf("scanning similar: %w", err)
		}
		similars = append(similars, sim)
	}
	return similars, rows.Err()
}

// Get retrieves the similarity of the edge from -> to.
func (r *EdgeRepository) Get(ctx context.Context, from, to int64) (float64, bool, error) {
	var sim float64
	err := r.pool.QueryRow(ctx,
		`SELECT similarity FROM similars WHERE from_id = $1 AND to_id = $2`, from, to,
	).Scan(&sim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying similarity: %w", err)
	}
	return sim, true, nil
}

// Stats counts songs, edges, empty markers, and crawled songs.
func (r *EdgeRepository) Stats(ctx context.Context) (*graph.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM songs),
			COUNT(*) FILTER (WHERE to_id IS NOT NULL),
			COUNT(*) FILTER (WHERE to_id IS NULL),
			COUNT(DISTINCT from_id)
		FROM similars
	`
	var st graph.Stats
	if err := r.pool.QueryRow(ctx, query).Scan(&st.Songs, &st.Edges, &st.Empty, &st.Crawled); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return &st, nil
}

// edgeColumns splits edges into the column arrays unnest expects.
func edgeColumns(edges []graph.Edge) ([]int64, []float64) {
	toIDs := make([]int64, len(edges))
	sims := make([]float64, len(edges))
	for i, e := range edges {
		toIDs[i] = e.To
		sims[i] = e.Similarity
	}
	return toIDs, sims
}
