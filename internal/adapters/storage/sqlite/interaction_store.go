package sqlite

import (
	"context"
	"fmt"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

func (s *Store) AppendInteraction(ctx context.Context, e *domain.InteractionLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (
			id, user_id, domain, session_id, prompt, response, tokens_used, tokens_estimated,
			model, finish_reason, temperature, stream_enabled, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.UserID), string(e.Domain), string(e.SessionID), e.Prompt, e.Response,
		e.TokensUsed, boolInt(e.TokensEstimated), e.Model, e.FinishReason,
		float64(e.Temperature), boolInt(e.StreamEnabled), toNanos(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append interaction: %w", err)
	}
	return nil
}

// InteractionCount returns the number of logged interactions for userID.
func (s *Store) InteractionCount(ctx context.Context, userID domain.UserID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE user_id = ?`, string(userID)).Scan(&n)
	return n, err
}
