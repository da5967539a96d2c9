package firestore

import (
	"context"
	"fmt"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

func (s *Store) AppendInteraction(ctx context.Context, e *domain.InteractionLogEntry) error {
	doc := interactionDoc{
		UserID:          string(e.UserID),
		Domain:          string(e.Domain),
		SessionID:       string(e.SessionID),
		Prompt:          e.Prompt,
		Response:        e.Response,
		TokensUsed:      e.TokensUsed,
		TokensEstimated: e.TokensEstimated,
		Model:           e.Model,
		FinishReason:    e.FinishReason,
		Temperature:     float64(e.Temperature),
		StreamEnabled:   e.StreamEnabled,
		Timestamp:       e.Timestamp,
	}
	if _, err := s.client.Collection(interactionsCollection).Doc(e.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("appending interaction: %w", err)
	}
	return nil
}
