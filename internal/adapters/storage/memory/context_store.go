package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

type contextKey struct {
	user   domain.UserID
	domain domain.Domain
}

// ContextStore is an in-memory domain.ContextStore.
type ContextStore struct {
	mu     sync.RWMutex
	states map[contextKey]domain.DomainState
	prefs  map[domain.UserID]domain.Preferences
}

func NewContextStore() *ContextStore {
	return &ContextStore{
		states: make(map[contextKey]domain.DomainState),
		prefs:  make(map[domain.UserID]domain.Preferences),
	}
}

func (s *ContextStore) GetUserContext(_ context.Context, userID domain.UserID, d domain.Domain) (*domain.UserContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[contextKey{userID, d}]
	if !ok {
		state = domain.EmptyState(d)
	} else {
		// Merging into an empty state yields an independent copy.
		state = domain.EmptyState(d).Merge(state)
	}

	return &domain.UserContext{
		UserID:      userID,
		Domain:      d,
		Preferences: clonePrefs(s.prefs[userID]),
		State:       state,
	}, nil
}

func (s *ContextStore) MergeDomainState(_ context.Context, userID domain.UserID, state domain.DomainState) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contextKey{userID, state.Domain()}
	current, ok := s.states[key]
	if !ok {
		current = domain.EmptyState(state.Domain())
	}
	s.states[key] = current.Merge(state)
	return nil
}

func (s *ContextStore) GetPreferences(_ context.Context, userID domain.UserID) (domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePrefs(s.prefs[userID]), nil
}

func (s *ContextStore) SavePreferences(_ context.Context, userID domain.UserID, prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = clonePrefs(prefs)
	return nil
}

func clonePrefs(p domain.Preferences) domain.Preferences {
	p.FocusAreas = slices.Clone(p.FocusAreas)
	return p
}
