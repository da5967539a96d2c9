package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─────────────────────────────────────────
// MemoryStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMemory(ctx context.Context, e *domain.MemoryEntry) error {
	doc := memoryDoc{
		UserID:      string(e.UserID),
		Domain:      string(e.Domain),
		SessionID:   string(e.SessionID),
		Role:        string(e.Role),
		Content:     e.Content,
		TokensUsed:  e.TokensUsed,
		Keywords:    e.Insights.Keywords,
		Topics:      e.Insights.Topics,
		Sentiment:   string(e.Insights.Sentiment),
		ActionItems: e.Insights.ActionItems,
		Timestamp:   e.Timestamp,
	}
	if _, err := s.memoryCol().Doc(string(e.ID)).Create(ctx, doc); err != nil {
		return fmt.Errorf("appending memory: %w", err)
	}
	return nil
}

func (s *Store) RecentMemory(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.MemoryEntry, error) {
	q := s.memoryCol().Where("user_id", "==", string(userID))
	if d != "" {
		q = q.Where("domain", "==", string(d))
	}
	q = q.OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*domain.MemoryEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing memory: %w", err)
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding memory: %w", err)
		}
		result = append(result, &domain.MemoryEntry{
			ID:         domain.MemoryID(snap.Ref.ID),
			UserID:     domain.UserID(doc.UserID),
			Domain:     domain.Domain(doc.Domain),
			SessionID:  domain.SessionID(doc.SessionID),
			Role:       domain.Role(doc.Role),
			Content:    doc.Content,
			TokensUsed: doc.TokensUsed,
			Insights: domain.Insights{
				Keywords:    doc.Keywords,
				Topics:      doc.Topics,
				Sentiment:   domain.Sentiment(doc.Sentiment),
				ActionItems: doc.ActionItems,
			},
			Timestamp: doc.Timestamp,
		})
	}
	return result, nil
}
