// Package ratelimit enforces per-user request and token quotas over a short
// (per minute) and a long (per day) window that share one start timestamp.
//
// Two accepted risks are deliberate and must stay visible:
//
//   - Fail open: when the counter store errors, Check allows the request.
//     Availability is preferred over strict quota enforcement.
//   - Check-then-record race: concurrent requests for the same user can all
//     pass Check before any of them calls Record, so a burst may over-admit
//     by up to the number of in-flight requests. Record itself is atomic in
//     every store; making Check and a pre-increment a single conditional
//     increment would close the gap at the cost of a write on every check.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const (
	ShortWindow = time.Minute
	LongWindow  = 24 * time.Hour
)

// Limits are the per-user ceilings.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
	TokensPerDay      int
}

// Decision is the result of Check.
type Decision struct {
	Allowed bool
	Reason  string
	ResetAt time.Time
}

type Limiter struct {
	store  domain.RateLimitStore
	limits Limits
	now    func() time.Time
}

func NewLimiter(store domain.RateLimitStore, limits Limits) *Limiter {
	return &Limiter{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to move across windows.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check decides whether key may issue another request. It never returns an
// error: store failures fail open.
func (l *Limiter) Check(ctx context.Context, key domain.UserID) Decision {
	log := observability.LoggerFromContext(ctx).With("rate_key", key)
	now := l.now()

	w, ok, err := l.store.GetRateWindow(ctx, key)
	if err != nil {
		log.Warn("rate limit store unavailable, failing open", "error", err)
		return Decision{Allowed: true}
	}
	if !ok {
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(w.WindowStart)

	if elapsed < ShortWindow {
		if w.Requests >= l.limits.RequestsPerMinute {
			return deny(fmt.Sprintf("Rate limit exceeded: %d requests per minute", l.limits.RequestsPerMinute), w.WindowStart.Add(ShortWindow))
		}
		if w.Tokens >= l.limits.TokensPerMinute {
			return deny(fmt.Sprintf("Rate limit exceeded: %d tokens per minute", l.limits.TokensPerMinute), w.WindowStart.Add(ShortWindow))
		}
	}

	if elapsed <= LongWindow {
		if w.Requests >= l.limits.RequestsPerDay {
			return deny(fmt.Sprintf("Rate limit exceeded: %d requests per day", l.limits.RequestsPerDay), w.WindowStart.Add(LongWindow))
		}
		if w.Tokens >= l.limits.TokensPerDay {
			return deny(fmt.Sprintf("Rate limit exceeded: %d tokens per day", l.limits.TokensPerDay), w.WindowStart.Add(LongWindow))
		}
		return Decision{Allowed: true}
	}

	// Expired: start a fresh window before the request proceeds.
	if err := l.store.ResetRateWindow(ctx, key, domain.FreshWindow(now)); err != nil {
		log.Warn("rate limit window reset failed, failing open", "error", err)
	}
	return Decision{Allowed: true}
}

// Record counts one completed request that used tokens. It is called exactly
// once per logical request, after the completion content is known. Failures
// are logged and swallowed.
func (l *Limiter) Record(ctx context.Context, key domain.UserID, tokens int) {
	if tokens < 0 {
		tokens = 0
	}
	observability.NonCritical(ctx, "ratelimit.record", func(ctx context.Context) error {
		_, err := l.store.IncrementRateWindow(ctx, key, tokens, l.now(), LongWindow)
		return err
	})
}

func deny(reason string, resetAt time.Time) Decision {
	return Decision{Allowed: false, Reason: reason, ResetAt: resetAt}
}
