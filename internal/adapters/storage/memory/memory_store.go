package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// MemoryStore keeps conversation memory rows per user in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[domain.UserID][]*domain.MemoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[domain.UserID][]*domain.MemoryEntry),
	}
}

func (s *MemoryStore) AppendMemory(_ context.Context, entry *domain.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	s.byUser[entry.UserID] = append(s.byUser[entry.UserID], &c)
	return nil
}

func (s *MemoryStore) RecentMemory(_ context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.byUser[userID]
	out := make([]*domain.MemoryEntry, 0, min(len(rows), max(limit, 0)))
	for i := len(rows) - 1; i >= 0; i-- {
		if d != "" && rows[i].Domain != d {
			continue
		}
		c := *rows[i]
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored rows for userID.
func (s *MemoryStore) Len(userID domain.UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser[userID])
}
