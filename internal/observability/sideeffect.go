package observability

import (
	"context"
	"fmt"
)

// NonCritical runs a side effect that must never fail the parent request:
// interaction logging, memory and session writes, audit events. Errors and
// panics are recorded on the operational log and swallowed. The side effect
// runs on a context detached from the caller's cancellation so it still
// completes after a client disconnect.
func NonCritical(ctx context.Context, op string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	log := LoggerFromContext(ctx).With("op", op)

	defer func() {
		if r := recover(); r != nil {
			log.Error("non-critical side effect panicked", "panic", fmt.Sprint(r))
		}
	}()

	if err := fn(detached); err != nil {
		log.Warn("non-critical side effect failed", "error", err)
	}
}
