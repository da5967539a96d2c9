// Package interaction writes the append-only audit record of every exchange.
package interaction

import (
	"context"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

type Logger struct {
	store domain.InteractionStore
	now   func() time.Time
}

func NewLogger(store domain.InteractionStore) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Log records entry. It never fails the caller: store errors and panics are
// reported on the operational log only.
func (l *Logger) Log(ctx context.Context, entry *domain.InteractionLogEntry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = domain.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	observability.NonCritical(ctx, "interaction.log", func(ctx context.Context) error {
		return l.store.AppendInteraction(ctx, entry)
	})
}
