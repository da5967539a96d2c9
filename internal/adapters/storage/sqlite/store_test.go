package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "farum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserContextDefaultsAndMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	uc, err := s.GetUserContext(ctx, "u1", domain.DomainSoul)
	require.NoError(t, err)
	require.Equal(t, &domain.SoulState{}, uc.State)
	require.False(t, uc.HasPreferences())

	require.NoError(t, s.MergeDomainState(ctx, "u1", &domain.SoulState{Archetype: "sage", Tags: []string{"purpose"}}))
	require.NoError(t, s.MergeDomainState(ctx, "u1", &domain.SoulState{LastFocus: "values", Tags: []string{"career"}}))
	require.NoError(t, s.MergeDomainState(ctx, "u1", &domain.WorkState{Workflow: "kanban"}))

	uc, err = s.GetUserContext(ctx, "u1", domain.DomainSoul)
	require.NoError(t, err)
	require.Equal(t, &domain.SoulState{Archetype: "sage", LastFocus: "values", Tags: []string{"purpose", "career"}}, uc.State)
	require.False(t, uc.UpdatedAt.IsZero())

	work, err := s.GetUserContext(ctx, "u1", domain.DomainWork)
	require.NoError(t, err)
	require.Equal(t, &domain.WorkState{Workflow: "kanban"}, work.State)
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prefs := domain.Preferences{CommunicationStyle: "direct", FocusAreas: []string{"sleep", "focus"}, CrossContextDisabled: true}
	require.NoError(t, s.SavePreferences(ctx, "u1", prefs))

	uc, err := s.GetUserContext(ctx, "u1", domain.DomainHealth)
	require.NoError(t, err)
	require.Equal(t, prefs, uc.Preferences)

	prefs.CrossContextDisabled = false
	require.NoError(t, s.SavePreferences(ctx, "u1", prefs))
	got, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	require.False(t, got.CrossContextDisabled)
}

func TestSessionsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := &domain.Session{ID: "s1", UserID: "u1", Domain: domain.DomainWork, StartedAt: base, LastActivityAt: base}
	newer := &domain.Session{ID: "s2", UserID: "u1", Domain: domain.DomainWork, StartedAt: base, LastActivityAt: base.Add(time.Minute)}
	other := &domain.Session{ID: "s3", UserID: "u1", Domain: domain.DomainSoul, StartedAt: base, LastActivityAt: base}
	for _, sess := range []*domain.Session{older, newer, other} {
		require.NoError(t, s.CreateSession(ctx, sess))
	}

	active, err := s.ListActiveSessions(ctx, "u1", domain.DomainWork, 0)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.EqualValues(t, "s2", active[0].ID)

	newer.Apply(domain.SessionUpdate{MessageDelta: 1, TokensDelta: 40, KeyTopics: []string{"deadline"}, Sentiment: domain.SentimentPositive}, base.Add(2*time.Minute))
	newer.Completed = true
	require.NoError(t, s.UpdateSession(ctx, newer))

	got, err := s.GetSession(ctx, "s2")
	require.NoError(t, err)
	require.True(t, got.Completed)
	require.Equal(t, 1, got.MessageCount)
	require.Equal(t, 40, got.TokensUsed)
	require.Equal(t, []string{"deadline"}, got.Context.KeyTopics)
	require.Equal(t, []domain.Sentiment{domain.SentimentPositive}, got.Context.SentimentTrend)
	require.True(t, got.LastActivityAt.Equal(base.Add(2*time.Minute)))

	active, err = s.ListActiveSessions(ctx, "u1", domain.DomainWork, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.EqualValues(t, "s1", active[0].ID)

	_, err = s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRecentMemoryOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := []*domain.MemoryEntry{
		{ID: "m1", UserID: "u1", Domain: domain.DomainSoul, SessionID: "s1", Role: domain.RoleUser, Content: "first", Timestamp: base},
		{ID: "m2", UserID: "u1", Domain: domain.DomainWork, SessionID: "s2", Role: domain.RoleUser, Content: "second", Timestamp: base.Add(time.Second)},
		{ID: "m3", UserID: "u1", Domain: domain.DomainSoul, SessionID: "s1", Role: domain.RoleAssistant, Content: "third", Timestamp: base.Add(2 * time.Second),
			Insights: domain.Insights{Topics: []string{"purpose"}, Sentiment: domain.SentimentNeutral}},
		{ID: "m4", UserID: "u2", Domain: domain.DomainSoul, SessionID: "s9", Role: domain.RoleUser, Content: "foreign", Timestamp: base.Add(3 * time.Second)},
	}
	for _, r := range rows {
		require.NoError(t, s.AppendMemory(ctx, r))
	}

	all, err := s.RecentMemory(ctx, "u1", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "third", all[0].Content)
	require.Equal(t, []string{"purpose"}, all[0].Insights.Topics)

	soul, err := s.RecentMemory(ctx, "u1", domain.DomainSoul, 1)
	require.NoError(t, err)
	require.Len(t, soul, 1)
	require.EqualValues(t, "m3", soul[0].ID)

	none, err := s.RecentMemory(ctx, "nobody", "", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestIncrementRateWindowIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, ok, err := s.GetRateWindow(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementRateWindow(ctx, "u1", 5, now, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, ok, err := s.GetRateWindow(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 20, w.Requests)
	require.Equal(t, 100, w.Tokens)

	// An expired window restarts.
	w, err = s.IncrementRateWindow(ctx, "u1", 7, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, w.Requests)
	require.Equal(t, 7, w.Tokens)

	require.NoError(t, s.ResetRateWindow(ctx, "u1", domain.FreshWindow(now)))
	w, _, err = s.GetRateWindow(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, w.Requests)
}

func TestAppendInteraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendInteraction(ctx, &domain.InteractionLogEntry{
		ID: "i1", UserID: "u1", Domain: domain.DomainBrand, Prompt: "tagline", Response: "Be bold",
		TokensUsed: 12, Model: "gemini-test", FinishReason: "stop", Temperature: 0.7, Timestamp: time.Now(),
	}))
	require.Error(t, s.AppendInteraction(ctx, &domain.InteractionLogEntry{ID: "i1", UserID: "u1", Timestamp: time.Now()}),
		"the log is append-only")

	n, err := s.InteractionCount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
