package memory

// Store bundles every in-memory store so one value can be wired wherever the
// application expects a storage backend.
type Store struct {
	*ContextStore
	*SessionStore
	*MemoryStore
	*RateLimitStore
	*InteractionStore
}

func NewStore() *Store {
	return &Store{
		ContextStore:     NewContextStore(),
		SessionStore:     NewSessionStore(),
		MemoryStore:      NewMemoryStore(),
		RateLimitStore:   NewRateLimitStore(),
		InteractionStore: NewInteractionStore(),
	}
}
