package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-gateway/internal/adapters/storage/codec"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

const (
	contextsCollection     = "user-contexts"
	preferencesCollection  = "user-preferences"
	sessionsCollection     = "conversation-sessions"
	memoryCollection       = "conversation-memory"
	rateLimitsCollection   = "rate-limits"
	interactionsCollection = "interaction-log"
)

var (
	_ domain.ContextStore     = (*Store)(nil)
	_ domain.SessionStore     = (*Store)(nil)
	_ domain.MemoryStore      = (*Store)(nil)
	_ domain.RateLimitStore   = (*Store)(nil)
	_ domain.InteractionStore = (*Store)(nil)
)

// Store implements every storage port on Cloud Firestore.
//
// ListActiveSessions and RecentMemory need composite indexes on
// (user_id, domain, completed, last_activity_at) and
// (user_id, domain, timestamp).
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) contextDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection(contextsCollection).Doc(string(userID))
}

func (s *Store) preferencesDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection(preferencesCollection).Doc(string(userID))
}

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection(sessionsCollection)
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) memoryCol() *firestore.CollectionRef {
	return s.client.Collection(memoryCollection)
}

func (s *Store) rateDoc(key domain.UserID) *firestore.DocumentRef {
	return s.client.Collection(rateLimitsCollection).Doc(string(key))
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type preferencesDoc struct {
	CommunicationStyle   string    `firestore:"communication_style"`
	FocusAreas           []string  `firestore:"focus_areas"`
	CrossContextDisabled bool      `firestore:"cross_context_disabled"`
	UpdatedAt            time.Time `firestore:"updated_at"`
}

// contextDocument holds one sub-object per domain, keyed by the domain name.
type contextDocument struct {
	Soul      *codec.StateRecord `firestore:"soul,omitempty"`
	Work      *codec.StateRecord `firestore:"work,omitempty"`
	Brand     *codec.StateRecord `firestore:"brand,omitempty"`
	Health    *codec.StateRecord `firestore:"health,omitempty"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

func (c *contextDocument) state(d domain.Domain) codec.StateRecord {
	var r *codec.StateRecord
	switch d {
	case domain.DomainSoul:
		r = c.Soul
	case domain.DomainWork:
		r = c.Work
	case domain.DomainBrand:
		r = c.Brand
	case domain.DomainHealth:
		r = c.Health
	}
	if r == nil {
		return codec.StateRecord{}
	}
	return *r
}

type sessionDoc struct {
	UserID         string    `firestore:"user_id"`
	Domain         string    `firestore:"domain"`
	StartedAt      time.Time `firestore:"started_at"`
	LastActivityAt time.Time `firestore:"last_activity_at"`
	MessageCount   int       `firestore:"message_count"`
	TokensUsed     int       `firestore:"tokens_used"`
	SelectedFocus  string    `firestore:"selected_focus"`
	KeyTopics      []string  `firestore:"key_topics"`
	SentimentTrend []string  `firestore:"sentiment_trend"`
	Completed      bool      `firestore:"completed"`
}

type memoryDoc struct {
	UserID      string    `firestore:"user_id"`
	Domain      string    `firestore:"domain"`
	SessionID   string    `firestore:"session_id"`
	Role        string    `firestore:"role"`
	Content     string    `firestore:"content"`
	TokensUsed  int       `firestore:"tokens_used"`
	Keywords    []string  `firestore:"keywords"`
	Topics      []string  `firestore:"topics"`
	Sentiment   string    `firestore:"sentiment"`
	ActionItems []string  `firestore:"action_items"`
	Timestamp   time.Time `firestore:"timestamp"`
}

type rateWindowDoc struct {
	Requests    int       `firestore:"requests"`
	Tokens      int       `firestore:"tokens"`
	WindowStart time.Time `firestore:"window_start"`
	LastRequest time.Time `firestore:"last_request"`
}

type interactionDoc struct {
	UserID          string    `firestore:"user_id"`
	Domain          string    `firestore:"domain"`
	SessionID       string    `firestore:"session_id"`
	Prompt          string    `firestore:"prompt"`
	Response        string    `firestore:"response"`
	TokensUsed      int       `firestore:"tokens_used"`
	TokensEstimated bool      `firestore:"tokens_estimated"`
	Model           string    `firestore:"model"`
	FinishReason    string    `firestore:"finish_reason"`
	Temperature     float64   `firestore:"temperature"`
	StreamEnabled   bool      `firestore:"stream_enabled"`
	Timestamp       time.Time `firestore:"timestamp"`
}
