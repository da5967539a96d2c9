package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─── MemoryStore ─────────────────────────────────────────────────────────────

type insightsJSON struct {
	Keywords    []string         `json:"keywords,omitempty"`
	Topics      []string         `json:"topics,omitempty"`
	Sentiment   domain.Sentiment `json:"sentiment,omitempty"`
	ActionItems []string         `json:"actionItems,omitempty"`
}

func (s *Store) AppendMemory(ctx context.Context, e *domain.MemoryEntry) error {
	insights, err := marshalJSON(insightsJSON(e.Insights))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory (id, user_id, domain, session_id, role, content, tokens_used, insights, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.UserID), string(e.Domain), string(e.SessionID), string(e.Role),
		e.Content, e.TokensUsed, insights, toNanos(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append memory: %w", err)
	}
	return nil
}

func (s *Store) RecentMemory(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, user_id, domain, session_id, role, content, tokens_used, insights, timestamp
		FROM memory WHERE user_id = ?`
	args := []any{string(userID)}
	if d != "" {
		query += ` AND domain = ?`
		args = append(args, string(d))
	}
	// rowid breaks ties between rows written in the same instant.
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent memory: %w", err)
	}
	defer rows.Close()

	var result []*domain.MemoryEntry
	for rows.Next() {
		var (
			e        domain.MemoryEntry
			insights string
			ts       int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Domain, &e.SessionID, &e.Role,
			&e.Content, &e.TokensUsed, &insights, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		var in insightsJSON
		if err := json.Unmarshal([]byte(insights), &in); err != nil {
			return nil, fmt.Errorf("sqlite: decode insights: %w", err)
		}
		e.Insights = domain.Insights(in)
		e.Timestamp = fromNanos(ts)
		result = append(result, &e)
	}
	return result, rows.Err()
}
