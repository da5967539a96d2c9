package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─── RateLimitStore ──────────────────────────────────────────────────────────

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) GetRateWindow(ctx context.Context, key domain.UserID) (domain.RateWindow, bool, error) {
	w, ok, err := readWindow(ctx, s.db, key)
	if err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("sqlite: get rate window: %w", err)
	}
	return w, ok, nil
}

func (s *Store) ResetRateWindow(ctx context.Context, key domain.UserID, w domain.RateWindow) error {
	if err := writeWindow(ctx, s.db, key, w); err != nil {
		return fmt.Errorf("sqlite: reset rate window: %w", err)
	}
	return nil
}

func (s *Store) IncrementRateWindow(ctx context.Context, key domain.UserID, tokens int, now time.Time, maxAge time.Duration) (domain.RateWindow, error) {
	var out domain.RateWindow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, _, err := readWindow(ctx, tx, key)
		if err != nil {
			return err
		}
		out = current.Add(tokens, now, maxAge)
		return writeWindow(ctx, tx, key, out)
	})
	if err != nil {
		return domain.RateWindow{}, fmt.Errorf("sqlite: increment rate window: %w", err)
	}
	return out, nil
}

func readWindow(ctx context.Context, q querier, key domain.UserID) (domain.RateWindow, bool, error) {
	var (
		w                  domain.RateWindow
		start, lastRequest int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT requests, tokens, window_start, last_request FROM rate_windows WHERE key = ?`,
		string(key),
	).Scan(&w.Requests, &w.Tokens, &start, &lastRequest)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RateWindow{}, false, nil
	}
	if err != nil {
		return domain.RateWindow{}, false, err
	}
	w.WindowStart = fromNanos(start)
	w.LastRequest = fromNanos(lastRequest)
	return w, true, nil
}

func writeWindow(ctx context.Context, q querier, key domain.UserID, w domain.RateWindow) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rate_windows (key, requests, tokens, window_start, last_request) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			requests     = excluded.requests,
			tokens       = excluded.tokens,
			window_start = excluded.window_start,
			last_request = excluded.last_request`,
		string(key), w.Requests, w.Tokens, toNanos(w.WindowStart), toNanos(w.LastRequest),
	)
	return err
}
