// Package sqlite implements every storage port on a single embedded SQLite
// database. It suits single-node deployments and local development with
// data that survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

var (
	_ domain.ContextStore     = (*Store)(nil)
	_ domain.SessionStore     = (*Store)(nil)
	_ domain.MemoryStore      = (*Store)(nil)
	_ domain.RateLimitStore   = (*Store)(nil)
	_ domain.InteractionStore = (*Store)(nil)
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One writer at a time; transactions would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS user_contexts (
			user_id    TEXT    NOT NULL,
			domain     TEXT    NOT NULL,
			state      TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, domain)
		);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id                TEXT PRIMARY KEY,
			communication_style    TEXT    NOT NULL DEFAULT '',
			focus_areas            TEXT    NOT NULL DEFAULT '[]',
			cross_context_disabled INTEGER NOT NULL DEFAULT 0,
			updated_at             INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT    NOT NULL,
			domain           TEXT    NOT NULL,
			started_at       INTEGER NOT NULL,
			last_activity_at INTEGER NOT NULL,
			message_count    INTEGER NOT NULL DEFAULT 0,
			tokens_used      INTEGER NOT NULL DEFAULT 0,
			context          TEXT    NOT NULL DEFAULT '{}',
			completed        INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_active
			ON sessions (user_id, domain, completed, last_activity_at DESC);

		CREATE TABLE IF NOT EXISTS memory (
			id          TEXT PRIMARY KEY,
			user_id     TEXT    NOT NULL,
			domain      TEXT    NOT NULL,
			session_id  TEXT    NOT NULL,
			role        TEXT    NOT NULL,
			content     TEXT    NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			insights    TEXT    NOT NULL DEFAULT '{}',
			timestamp   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memory_user ON memory (user_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_memory_user_domain ON memory (user_id, domain, timestamp DESC);

		CREATE TABLE IF NOT EXISTS rate_windows (
			key          TEXT PRIMARY KEY,
			requests     INTEGER NOT NULL,
			tokens       INTEGER NOT NULL,
			window_start INTEGER NOT NULL,
			last_request INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS interactions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT    NOT NULL,
			domain           TEXT    NOT NULL,
			session_id       TEXT    NOT NULL,
			prompt           TEXT    NOT NULL,
			response         TEXT    NOT NULL,
			tokens_used      INTEGER NOT NULL,
			tokens_estimated INTEGER NOT NULL,
			model            TEXT    NOT NULL,
			finish_reason    TEXT    NOT NULL,
			temperature      REAL    NOT NULL,
			stream_enabled   INTEGER NOT NULL,
			timestamp        INTEGER NOT NULL
		);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Timestamps are stored as unix nanoseconds; 0 encodes the zero time.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
