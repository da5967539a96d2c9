// Package conversation manages session lifecycle and the append-only
// conversation memory.
//
// Two concurrent first messages for the same (user, domain) can both create
// a session. That race is accepted: session state is advisory context, not a
// source of truth, and readers always pick the most recent active session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

type Service struct {
	sessionStore domain.SessionStore
	memoryStore  domain.MemoryStore
	idleTimeout  time.Duration
	now          func() time.Time
}

func NewService(sessionStore domain.SessionStore, memoryStore domain.MemoryStore, idleTimeout time.Duration) *Service {
	return &Service{
		sessionStore: sessionStore,
		memoryStore:  memoryStore,
		idleTimeout:  idleTimeout,
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// UpsertSession merge-updates the session named by update.SessionID when it
// exists and is still active for (userID, d). Otherwise it creates a new
// session, which supersedes any older active session for the same pair.
func (s *Service) UpsertSession(ctx context.Context, userID domain.UserID, d domain.Domain, update domain.SessionUpdate) (domain.SessionID, error) {
	now := s.now()
	log := observability.LoggerFromContext(ctx).With("domain", d)

	if update.SessionID != "" {
		session, err := s.sessionStore.GetSession(ctx, update.SessionID)
		switch {
		case err == nil && session.UserID == userID && session.Domain == d && !session.Completed:
			session.Apply(update, now)
			if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
				log.Error("failed to update session", "session_id", session.ID, "error", err)
				return "", fmt.Errorf("update session: %w", err)
			}
			return session.ID, nil
		case err != nil && !errors.Is(err, domain.ErrSessionNotFound):
			return "", fmt.Errorf("get session: %w", err)
		}
		log.Info("requested session not usable, starting a new one", "session_id", update.SessionID)
	}

	session := &domain.Session{
		ID:        domain.SessionID(domain.NewID()),
		UserID:    userID,
		Domain:    d,
		StartedAt: now,
	}
	session.Apply(update, now)

	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return "", fmt.Errorf("create session: %w", err)
	}
	log.Info("session started", "session_id", session.ID)

	observability.NonCritical(ctx, "conversation.supersede", func(ctx context.Context) error {
		return s.supersede(ctx, session)
	})

	return session.ID, nil
}

func (s *Service) supersede(ctx context.Context, current *domain.Session) error {
	active, err := s.sessionStore.ListActiveSessions(ctx, current.UserID, current.Domain, 0)
	if err != nil {
		return err
	}
	var errs []error
	for _, old := range active {
		if old.ID == current.ID {
			continue
		}
		old.Completed = true
		if err := s.sessionStore.UpdateSession(ctx, old); err != nil {
			errs = append(errs, fmt.Errorf("complete %s: %w", old.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ResolveActiveSession returns the most recent non-completed session for
// (userID, d) that saw activity within the idle timeout, or "" when a new
// session should start.
func (s *Service) ResolveActiveSession(ctx context.Context, userID domain.UserID, d domain.Domain) (domain.SessionID, error) {
	active, err := s.sessionStore.ListActiveSessions(ctx, userID, d, 2)
	if err != nil {
		return "", fmt.Errorf("list active sessions: %w", err)
	}
	if len(active) == 0 {
		return "", nil
	}
	if len(active) > 1 {
		observability.LoggerFromContext(ctx).Warn("multiple active sessions, using most recent",
			"domain", d,
			"session_id", active[0].ID,
		)
	}
	latest := active[0]
	if s.idleTimeout > 0 && s.now().Sub(latest.LastActivityAt) > s.idleTimeout {
		return "", nil
	}
	return latest.ID, nil
}

// CompleteSession marks a session completed. Sessions of other users are
// reported as not found.
func (s *Service) CompleteSession(ctx context.Context, userID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, apperrors.New(apperrors.CodeNotFound, "session not found")
	}
	if session.Completed {
		return session, nil
	}

	session.Completed = true
	session.LastActivityAt = s.now()
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("session completed", "session_id", id)
	return session, nil
}

// SaveMemory appends one memory row. Prior rows are never touched.
func (s *Service) SaveMemory(ctx context.Context, entry *domain.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = domain.MemoryID(domain.NewID())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if err := s.memoryStore.AppendMemory(ctx, entry); err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// GetRecentMemory returns up to limit rows for (userID, d), newest first.
func (s *Service) GetRecentMemory(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.MemoryEntry, error) {
	rows, err := s.memoryStore.RecentMemory(ctx, userID, d, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memory: %w", err)
	}
	return rows, nil
}

// GetCrossDomainInsights returns the insights of the last limit rows across
// every domain of userID.
func (s *Service) GetCrossDomainInsights(ctx context.Context, userID domain.UserID, limit int) ([]domain.Insights, error) {
	rows, err := s.memoryStore.RecentMemory(ctx, userID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("cross-domain memory: %w", err)
	}
	out := make([]domain.Insights, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Insights)
	}
	return out, nil
}
