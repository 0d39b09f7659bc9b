// Package sqlitestore implements [character.LearnedStore] on a local SQLite
// file using the pure-Go modernc.org/sqlite driver. It is the default
// persistent backend for desktop use where no PostgreSQL server is around.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/lorelens/internal/character"
)

const schema = `
CREATE TABLE IF NOT EXISTS learned_names (
    name_key     TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    role         TEXT NOT NULL DEFAULT 'learned',
    description  TEXT NOT NULL DEFAULT '',
    confidence   REAL NOT NULL DEFAULT 0,
    observations INTEGER NOT NULL DEFAULT 0,
    promoted_at  INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
`

// Store is a [character.LearnedStore] backed by SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ character.LearnedStore = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlitestore: ping: %w", err)
	}
	return nil
}

// Save implements [character.LearnedStore.Save].
func (s *Store) Save(ctx context.Context, name character.LearnedName) error {
	key := character.Fold(name.Name)
	if key == "" {
		return errors.New("sqlitestore: learned name must not be empty")
	}
	role := name.Role
	if role == "" {
		role = character.RoleLearned
	}
	now := time.Now()
	promotedAt := name.PromotedAt
	if promotedAt.IsZero() {
		promotedAt = now
	}

	const query = `
		INSERT INTO learned_names (
			name_key, name, role, description, confidence, observations, promoted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_key) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			description = excluded.description,
			confidence = excluded.confidence,
			observations = excluded.observations,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		key, name.Name, string(role), name.Description, name.Confidence,
		name.Observations, promotedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: save %q: %w", name.Name, err)
	}
	return nil
}

// List implements [character.LearnedStore.List].
func (s *Store) List(ctx context.Context) ([]character.LearnedName, error) {
	const query = `
		SELECT name, role, description, confidence, observations, promoted_at
		FROM learned_names
		ORDER BY name_key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	var out []character.LearnedName
	for rows.Next() {
		var (
			n          character.LearnedName
			role       string
			promotedMs int64
		)
		if err := rows.Scan(&n.Name, &role, &n.Description, &n.Confidence, &n.Observations, &promotedMs); err != nil {
			return nil, fmt.Errorf("sqlitestore: list scan: %w", err)
		}
		n.Role = character.Role(role)
		n.PromotedAt = time.UnixMilli(promotedMs)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	return out, nil
}

// Close implements [character.LearnedStore.Close].
func (s *Store) Close() error {
	return s.db.Close()
}
