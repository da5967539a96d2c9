package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─── SessionStore ────────────────────────────────────────────────────────────

type sessionContextJSON struct {
	SelectedFocus  string             `json:"selectedFocus,omitempty"`
	KeyTopics      []string           `json:"keyTopics,omitempty"`
	SentimentTrend []domain.Sentiment `json:"sentimentTrend,omitempty"`
}

const sessionColumns = `id, user_id, domain, started_at, last_activity_at, message_count, tokens_used, context, completed`

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	c, err := marshalJSON(sessionContextJSON(session.Context))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(session.ID), string(session.UserID), string(session.Domain),
		toNanos(session.StartedAt), toNanos(session.LastActivityAt),
		session.MessageCount, session.TokensUsed, c, boolInt(session.Completed),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	c, err := marshalJSON(sessionContextJSON(session.Context))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			last_activity_at = ?, message_count = ?, tokens_used = ?, context = ?, completed = ?
		WHERE id = ?`,
		toNanos(session.LastActivityAt), session.MessageCount, session.TokensUsed, c,
		boolInt(session.Completed), string(session.ID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, string(id))
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	return session, nil
}

func (s *Store) ListActiveSessions(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND domain = ? AND completed = 0
		ORDER BY last_activity_at DESC
		LIMIT ?`,
		string(userID), string(d), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*domain.Session, error) {
	var (
		session             domain.Session
		started, lastActive int64
		rawContext          string
		completed           int
	)
	err := sc.Scan(&session.ID, &session.UserID, &session.Domain, &started, &lastActive,
		&session.MessageCount, &session.TokensUsed, &rawContext, &completed)
	if err != nil {
		return nil, err
	}

	var c sessionContextJSON
	if err := json.Unmarshal([]byte(rawContext), &c); err != nil {
		return nil, fmt.Errorf("decode session context: %w", err)
	}
	session.Context = domain.SessionContext(c)
	session.StartedAt = fromNanos(started)
	session.LastActivityAt = fromNanos(lastActive)
	session.Completed = completed != 0
	return &session, nil
}
