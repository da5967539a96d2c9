package domain

// Sentiment is the coarse polarity of an exchange.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Insights are derived from an exchange by an InsightExtractor.
type Insights struct {
	Keywords    []string
	Topics      []string
	Sentiment   Sentiment
	ActionItems []string
}

// MemoryEntry is one immutable message within an exchange.
type MemoryEntry struct {
	ID         MemoryID
	UserID     UserID
	Domain     Domain
	SessionID  SessionID
	Role       Role
	Content    string
	TokensUsed int
	Insights   Insights
	Timestamp  Timestamp
}

// SessionContext is the advisory continuity state of a session.
type SessionContext struct {
	SelectedFocus  string
	KeyTopics      []string
	SentimentTrend []Sentiment
}

// Session is a bounded period of related exchanges for one (user, domain).
type Session struct {
	ID             SessionID
	UserID         UserID
	Domain         Domain
	StartedAt      Timestamp
	LastActivityAt Timestamp

	// MessageCount counts exchanges, not individual memory rows.
	MessageCount int
	TokensUsed   int
	Context      SessionContext
	Completed    bool
}

// SessionUpdate is the partial update applied by UpsertSession.
type SessionUpdate struct {
	SessionID     SessionID // optional; empty creates a new session
	MessageDelta  int
	TokensDelta   int
	SelectedFocus string
	KeyTopics     []string
	Sentiment     Sentiment
}

const (
	maxKeyTopics      = 20
	maxSentimentTrend = 10
)

// Apply merges u into s in place and stamps the activity time.
func (s *Session) Apply(u SessionUpdate, now Timestamp) {
	s.MessageCount += u.MessageDelta
	s.TokensUsed += u.TokensDelta
	if u.SelectedFocus != "" {
		s.Context.SelectedFocus = u.SelectedFocus
	}
	s.Context.KeyTopics = union(s.Context.KeyTopics, u.KeyTopics)
	if len(s.Context.KeyTopics) > maxKeyTopics {
		s.Context.KeyTopics = s.Context.KeyTopics[len(s.Context.KeyTopics)-maxKeyTopics:]
	}
	if u.Sentiment != "" {
		s.Context.SentimentTrend = append(s.Context.SentimentTrend, u.Sentiment)
		if len(s.Context.SentimentTrend) > maxSentimentTrend {
			s.Context.SentimentTrend = s.Context.SentimentTrend[len(s.Context.SentimentTrend)-maxSentimentTrend:]
		}
	}
	s.LastActivityAt = now
}
