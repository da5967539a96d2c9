package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if _, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session)); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	if _, err := s.sessionDoc(session.ID).Set(ctx, toSessionDoc(session)); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return fromSessionDoc(id, doc), nil
}

func (s *Store) ListActiveSessions(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().
		Where("user_id", "==", string(userID)).
		Where("domain", "==", string(d)).
		Where("completed", "==", false).
		OrderBy("last_activity_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*domain.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding session: %w", err)
		}
		result = append(result, fromSessionDoc(domain.SessionID(snap.Ref.ID), doc))
	}
	return result, nil
}

func toSessionDoc(s *domain.Session) sessionDoc {
	trend := make([]string, 0, len(s.Context.SentimentTrend))
	for _, v := range s.Context.SentimentTrend {
		trend = append(trend, string(v))
	}
	return sessionDoc{
		UserID:         string(s.UserID),
		Domain:         string(s.Domain),
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
		MessageCount:   s.MessageCount,
		TokensUsed:     s.TokensUsed,
		SelectedFocus:  s.Context.SelectedFocus,
		KeyTopics:      s.Context.KeyTopics,
		SentimentTrend: trend,
		Completed:      s.Completed,
	}
}

func fromSessionDoc(id domain.SessionID, doc sessionDoc) *domain.Session {
	var trend []domain.Sentiment
	for _, v := range doc.SentimentTrend {
		trend = append(trend, domain.Sentiment(v))
	}
	return &domain.Session{
		ID:             id,
		UserID:         domain.UserID(doc.UserID),
		Domain:         domain.Domain(doc.Domain),
		StartedAt:      doc.StartedAt,
		LastActivityAt: doc.LastActivityAt,
		MessageCount:   doc.MessageCount,
		TokensUsed:     doc.TokensUsed,
		Context: domain.SessionContext{
			SelectedFocus:  doc.SelectedFocus,
			KeyTopics:      doc.KeyTopics,
			SentimentTrend: trend,
		},
		Completed: doc.Completed,
	}
}
