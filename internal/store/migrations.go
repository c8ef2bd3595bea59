package store

import (
	"context"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS songs (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		title  TEXT NOT NULL,
		artist TEXT NOT NULL,
		UNIQUE (title, artist)
	);
	CREATE INDEX IF NOT EXISTS idx_songs_title ON songs (title);

	CREATE TABLE IF NOT EXISTS similars (
		from_id    INTEGER NOT NULL REFERENCES songs (id),
		to_id      INTEGER REFERENCES songs (id),
		similarity REAL,
		fetched_at TIMESTAMP NOT NULL,
		UNIQUE (from_id, to_id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_similars_empty
		ON similars (from_id) WHERE to_id IS NULL;
	CREATE INDEX IF NOT EXISTS idx_similars_to ON similars (to_id);`,
}

// SchemaVersion returns the number of migrations applied to the database.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}
	return nil
}
