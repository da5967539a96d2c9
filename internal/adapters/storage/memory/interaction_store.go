package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// InteractionStore is a simple in-memory implementation of domain.InteractionStore.
// It is NOT persistent and is only suitable for development / local mode.
type InteractionStore struct {
	mu      sync.RWMutex
	entries []*domain.InteractionLogEntry
}

func NewInteractionStore() *InteractionStore {
	return &InteractionStore{}
}

func (s *InteractionStore) AppendInteraction(_ context.Context, entry *domain.InteractionLogEntry) error {
	if entry == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	s.entries = append(s.entries, &c)
	return nil
}

// Entries returns a snapshot of every logged interaction, oldest first.
func (s *InteractionStore) Entries() []domain.InteractionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InteractionLogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
