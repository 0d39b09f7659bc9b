// Package pgstore implements [character.LearnedStore] on PostgreSQL using
// pgx. Any *pgxpool.Pool satisfies [DB]. A single *pgx.Conn does too, but
// only for callers that never use the Store concurrently; [Connect] opens a
// pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lorelens/internal/character"
)

// Schema is the SQL DDL for the learned_names table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS learned_names (
    name_key     TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    role         TEXT NOT NULL DEFAULT 'learned',
    description  TEXT NOT NULL DEFAULT '',
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
    observations INTEGER NOT NULL DEFAULT 0,
    promoted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [character.LearnedStore] backed by PostgreSQL.
type Store struct {
	db    DB
	close func() error
}

// Compile-time interface check.
var _ character.LearnedStore = (*Store)(nil)

// New creates a [Store] over db. The caller owns db; Close is a no-op. Call
// [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool to dsn, migrates the schema and returns a
// Store that closes the pool on Close.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	s := &Store{
		db: pool,
		close: func() error {
			pool.Close()
			return nil
		},
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks that the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("pgstore: ping: %w", err)
	}
	return nil
}

// Migrate executes the [Schema] DDL, creating the learned_names table if it
// does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Save implements [character.LearnedStore.Save].
func (s *Store) Save(ctx context.Context, name character.LearnedName) error {
	key := character.Fold(name.Name)
	if key == "" {
		return errors.New("pgstore: learned name must not be empty")
	}
	promotedAt := name.PromotedAt
	if promotedAt.IsZero() {
		promotedAt = time.Now()
	}

	const query = `
		INSERT INTO learned_names (
			name_key, name, role, description, confidence, observations, promoted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			description = EXCLUDED.description,
			confidence = EXCLUDED.confidence,
			observations = EXCLUDED.observations,
			updated_at = now()`

	_, err := s.db.Exec(ctx, query,
		key, name.Name, string(defaultRole(name.Role)), name.Description,
		name.Confidence, name.Observations, promotedAt,
	)
	if err != nil {
		return fmt.Errorf("pgstore: save %q: %w", name.Name, err)
	}
	return nil
}

// List implements [character.LearnedStore.List].
func (s *Store) List(ctx context.Context) ([]character.LearnedName, error) {
	const query = `
		SELECT name, role, description, confidence, observations, promoted_at
		FROM learned_names
		ORDER BY name_key`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	defer rows.Close()

	var out []character.LearnedName
	for rows.Next() {
		var (
			n    character.LearnedName
			role string
			obs  int32
		)
		if err := rows.Scan(&n.Name, &role, &n.Description, &n.Confidence, &obs, &n.PromotedAt); err != nil {
			return nil, fmt.Errorf("pgstore: list scan: %w", err)
		}
		n.Role = character.Role(role)
		n.Observations = int(obs)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	return out, nil
}

// Close implements [character.LearnedStore.Close].
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// defaultRole returns r, defaulting to [character.RoleLearned] if empty.
func defaultRole(r character.Role) character.Role {
	if r == "" {
		return character.RoleLearned
	}
	return r
}
