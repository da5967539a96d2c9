package observability

import "context"

// AuditEvent names a security-relevant ingress event.
type AuditEvent string

const (
	AuditRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	AuditAuthFailed        AuditEvent = "auth_failed"
	AuditInvalidInput      AuditEvent = "invalid_input"
)

// AuditSink receives security audit events, independently of the response path.
type AuditSink interface {
	Audit(ctx context.Context, event AuditEvent, attrs map[string]string) error
}

// LogAuditSink writes audit events to the operational log on a dedicated
// "security" channel.
type LogAuditSink struct{}

func NewLogAuditSink() *LogAuditSink {
	return &LogAuditSink{}
}

func (s *LogAuditSink) Audit(ctx context.Context, event AuditEvent, attrs map[string]string) error {
	args := make([]any, 0, 2*len(attrs)+4)
	args = append(args, "channel", "security", "event", string(event))
	for k, v := range attrs {
		args = append(args, k, v)
	}
	LoggerFromContext(ctx).Warn("security audit", args...)
	return nil
}
