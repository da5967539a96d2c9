package domain

// InteractionLogEntry is the append-only audit record of one exchange.
type InteractionLogEntry struct {
	ID              string
	UserID          UserID
	Domain          Domain
	SessionID       SessionID
	Prompt          string
	Response        string
	TokensUsed      int
	TokensEstimated bool
	Model           string
	FinishReason    string
	Temperature     float32
	StreamEnabled   bool
	Timestamp       Timestamp
}
