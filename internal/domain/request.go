package domain

// Request is one call into the pipeline. It is built per call and never stored.
type Request struct {
	Domain  Domain
	Prompt  string
	UserID  UserID
	Context RequestContext
	Options RequestOptions
}

// RequestContext carries optional caller-supplied continuity hints.
type RequestContext struct {
	SessionID SessionID
	Focus     string
}

// RequestOptions are the caller's completion overrides. Zero values mean
// "use the configured default".
type RequestOptions struct {
	Temperature *float32
	MaxTokens   int
	Stream      bool
	Model       string
}
