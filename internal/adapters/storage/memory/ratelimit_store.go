package memory

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// RateLimitStore is an in-memory counter store. Increments are atomic under
// the store mutex.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[domain.UserID]domain.RateWindow
}

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		windows: make(map[domain.UserID]domain.RateWindow),
	}
}

func (s *RateLimitStore) GetRateWindow(_ context.Context, key domain.UserID) (domain.RateWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	return w, ok, nil
}

func (s *RateLimitStore) ResetRateWindow(_ context.Context, key domain.UserID, w domain.RateWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = w
	return nil
}

func (s *RateLimitStore) IncrementRateWindow(_ context.Context, key domain.UserID, tokens int, now time.Time, maxAge time.Duration) (domain.RateWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[key].Add(tokens, now, maxAge)
	s.windows[key] = w
	return w, nil
}
