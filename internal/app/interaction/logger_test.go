package interaction

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-gateway/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

type failingStore struct{ panics bool }

func (f failingStore) AppendInteraction(context.Context, *domain.InteractionLogEntry) error {
	if f.panics {
		panic("disk on fire")
	}
	return errors.New("unavailable")
}

func TestLogAppends(t *testing.T) {
	store := memory.NewInteractionStore()
	l := NewLogger(store)

	l.Log(context.Background(), &domain.InteractionLogEntry{UserID: "u1", Domain: domain.DomainSoul, Prompt: "p", Response: "r"})
	l.Log(context.Background(), nil)

	entries := store.Entries()
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].ID)
	require.False(t, entries[0].Timestamp.IsZero())
	require.Equal(t, "r", entries[0].Response)
}

func TestLogSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf, slog.LevelDebug)
	t.Cleanup(func() { observability.SetOutput(os.Stdout, slog.LevelInfo) })

	for _, store := range []failingStore{{}, {panics: true}} {
		require.NotPanics(t, func() {
			NewLogger(store).Log(context.Background(), &domain.InteractionLogEntry{UserID: "u1"})
		})
	}
	require.Contains(t, buf.String(), "interaction.log")
	require.Contains(t, buf.String(), "unavailable")
	require.Contains(t, buf.String(), "disk on fire")
}
