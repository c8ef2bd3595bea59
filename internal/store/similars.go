package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/justestif/converge/internal/graph"
)

// HasOutgoing reports whether id has any similars row, edge or empty marker.
func (s *SQLiteStore) HasOutgoing(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM similars WHERE from_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking similars: %w", err)
	}
	return exists, nil
}

// UpsertSimilars inserts edges from one song in a single transaction, replacing
// the similarity of pairs already stored. Any empty marker for from is removed.
func (s *SQLiteStore) UpsertSimilars(ctx context.Context, from int64, edges []graph.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM similars WHERE from_id = ? AND to_id IS NULL`, from); err != nil {
		return fmt.Errorf("clearing empty marker: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO similars (from_id, to_id, similarity, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (from_id, to_id) DO UPDATE SET
			similarity = excluded.similarity,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, from, e.To, e.Similarity, now); err != nil {
			return fmt.Errorf("upserting edge %d -> %d: %w", from, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing similars: %w", err)
	}
	return nil
}

// MarkEmpty records that id has no similars. Calling it twice is a no-op.
func (s *SQLiteStore) MarkEmpty(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO similars (from_id, to_id, similarity, fetched_at)
		VALUES (?, NULL, NULL, ?)
		ON CONFLICT DO NOTHING`, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("inserting empty marker: %w", err)
	}
	return nil
}

// Similars returns the outgoing edges of id, highest similarity first.
// The empty marker is skipped; zero-similarity edges are kept.
func (s *SQLiteStore) Similars(ctx context.Context, id int64) ([]graph.Similar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.artist, x.similarity
		FROM similars x
		JOIN songs s ON s.id = x.to_id
		WHERE x.from_id = ? AND x.to_id IS NOT NULL
		ORDER BY x.similarity DESC, s.id`, id)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similars: %w", err)
	}
	return similars, nil
}

// Similarity returns the stored similarity of the edge from -> to.
func (s *SQLiteStore) Similarity(ctx context.Context, from, to int64) (float64, bool, error) {
	var sim float64
	err := s.db.QueryRowContext(ctx,
		`SELECT similarity FROM similars WHERE from_id = ? AND to_id = ?`, from, to,
	).Scan(&sim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying similarity: %w", err)
	}
	return sim, true, nil
}

// Stats counts songs, edges, empty markers, and songs whose similars are known.
func (s *SQLiteStore) Stats(ctx context.Context) (*graph.Stats, error) {
	var st graph.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM songs),
			(SELECT COUNT(*) FROM similars WHERE to_id IS NOT NULL),
			(SELECT COUNT(*) FROM similars WHERE to_id IS NULL),
			(SELECT COUNT(DISTINCT from_id) FROM similars)`,
	).Scan(&st.Songs, &st.Edges, &st.Empty, &st.Crawled)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return &st, nil
}
