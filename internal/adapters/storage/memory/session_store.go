package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}

	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	return cloneSession(sess), nil
}

func (s *SessionStore) ListActiveSessions(_ context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Domain == d && !sess.Completed {
			result = append(result, cloneSession(sess))
		}
	}

	slices.SortFunc(result, func(a, b *domain.Session) int {
		return b.LastActivityAt.Compare(a.LastActivityAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Context.KeyTopics = slices.Clone(s.Context.KeyTopics)
	c.Context.SentimentTrend = slices.Clone(s.Context.SentimentTrend)
	return &c
}
