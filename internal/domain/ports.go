package domain

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrSessionNotFound is returned by SessionStore.GetSession for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// CompiledPrompt is the final system+user pair sent to the provider.
// It is derived on every call and never persisted.
type CompiledPrompt struct {
	SystemPrompt string
	UserPrompt   string
	Context      *UserContext
}

// GenerationRequest is what a provider needs for one completion.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float32
	MaxTokens    int
}

// Generation is a complete provider answer.
type Generation struct {
	Content      string
	TokensUsed   int
	Model        string
	FinishReason string
}

// LLMClient defines how the core application interacts with an LLM service.
type LLMClient interface {
	GenerateReply(ctx context.Context, req GenerationRequest) (*Generation, error)
	// StreamReply yields content fragments in order. Stopping the iteration
	// early must release the underlying connection.
	StreamReply(ctx context.Context, req GenerationRequest) iter.Seq2[string, error]
}

// InsightExtractor derives Insights from one user+assistant exchange.
type InsightExtractor interface {
	Extract(prompt, response string) Insights
}

// ContextStore persists UserContext documents and shared preferences.
type ContextStore interface {
	// GetUserContext returns an empty context, not an error, for new users.
	GetUserContext(ctx context.Context, userID UserID, d Domain) (*UserContext, error)
	MergeDomainState(ctx context.Context, userID UserID, state DomainState) error
	GetPreferences(ctx context.Context, userID UserID) (Preferences, error)
	SavePreferences(ctx context.Context, userID UserID, prefs Preferences) error
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// ListActiveSessions returns non-completed sessions, most recent activity first.
	ListActiveSessions(ctx context.Context, userID UserID, d Domain, limit int) ([]*Session, error)
}

// MemoryStore is the append-only conversation memory.
type MemoryStore interface {
	AppendMemory(ctx context.Context, entry *MemoryEntry) error
	// RecentMemory returns rows newest first. An empty domain matches all domains.
	RecentMemory(ctx context.Context, userID UserID, d Domain, limit int) ([]*MemoryEntry, error)
}

// RateLimitStore is the external counter store behind the rate limiter.
type RateLimitStore interface {
	GetRateWindow(ctx context.Context, key UserID) (RateWindow, bool, error)
	ResetRateWindow(ctx context.Context, key UserID, w RateWindow) error
	// IncrementRateWindow applies RateWindow.Add atomically and returns the result.
	IncrementRateWindow(ctx context.Context, key UserID, tokens int, now time.Time, maxAge time.Duration) (RateWindow, error)
}

// InteractionStore is the append-only interaction log.
type InteractionStore interface {
	AppendInteraction(ctx context.Context, entry *InteractionLogEntry) error
}
