// Package router is the ingress gate. It rate-limits, authenticates,
// validates and sanitizes a raw request, then dispatches it to the handler
// registered for its domain.
//
// Rate limiting runs first and is keyed by the user id the credential
// resolves to, or by "anon:<client address>" when it does not resolve, so
// quota trips are reported before authentication failures.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/farum-gateway/internal/app/handler"
	"github.com/PabloGalante/farum-gateway/internal/app/ratelimit"
	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const maxTemperature = 2.0

type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (domain.UserID, error)
}

type RateChecker interface {
	Check(ctx context.Context, key domain.UserID) ratelimit.Decision
}

type DomainHandler interface {
	Domain() domain.Domain
	Handle(ctx context.Context, req domain.Request) (*handler.Result, error)
	HandleStream(ctx context.Context, req domain.Request, emit func(string) error) (*handler.Result, error)
}

// Inbound is a request as received from a transport, before any check.
type Inbound struct {
	Credential string
	ClientAddr string
	Domain     string
	Prompt     string
	Context    domain.RequestContext
	Options    domain.RequestOptions
}

// Admission is a request that passed every ingress gate.
type Admission struct {
	Request domain.Request
	handler DomainHandler
}

type Router struct {
	identity        IdentityResolver
	limiter         RateChecker
	audit           observability.AuditSink
	maxPromptLength int
	handlers        map[domain.Domain]DomainHandler
}

func New(identity IdentityResolver, limiter RateChecker, audit observability.AuditSink, maxPromptLength int) *Router {
	return &Router{
		identity:        identity,
		limiter:         limiter,
		audit:           audit,
		maxPromptLength: maxPromptLength,
		handlers:        make(map[domain.Domain]DomainHandler),
	}
}

// Register installs h for its domain, replacing any previous handler.
func (r *Router) Register(h DomainHandler) *Router {
	r.handlers[h.Domain()] = h
	return r
}

// Domains lists the enumerated domain set.
func (r *Router) Domains() []domain.Domain {
	return append([]domain.Domain(nil), domain.Domains...)
}

// Route admits and dispatches a blocking request.
func (r *Router) Route(ctx context.Context, in Inbound) (*handler.Result, error) {
	adm, err := r.Admit(ctx, in)
	if err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, adm)
}

// Admit runs the ingress gates in order: rate limit, identity, structural
// validation, sanitization, handler lookup.
func (r *Router) Admit(ctx context.Context, in Inbound) (_ *Admission, err error) {
	ctx, span := observability.Tracer().Start(ctx, "router.admit", trace.WithAttributes(
		attribute.String("farum.domain", in.Domain),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		}
		span.End()
	}()

	userID, authErr := r.identity.Resolve(ctx, in.Credential)
	key := userID
	if authErr != nil || userID == "" {
		key = domain.UserID("anon:" + in.ClientAddr)
	}

	if decision := r.limiter.Check(ctx, key); !decision.Allowed {
		r.emitAudit(ctx, observability.AuditRateLimitExceeded, in, map[string]string{
			"key":      string(key),
			"reason":   decision.Reason,
			"reset_at": decision.ResetAt.UTC().Format(time.RFC3339),
		})
		return nil, apperrors.RateLimited(decision.Reason, decision.ResetAt)
	}

	if authErr != nil || userID == "" {
		if authErr == nil {
			authErr = apperrors.New(apperrors.CodeUnauthorized, "Authentication required")
		}
		r.emitAudit(ctx, observability.AuditAuthFailed, in, map[string]string{"error": authErr.Error()})
		if apperrors.CodeOf(authErr) != apperrors.CodeUnauthorized {
			authErr = apperrors.Wrap(apperrors.CodeUnauthorized, "Authentication required", authErr)
		}
		return nil, authErr
	}
	ctx = observability.WithUserID(ctx, string(userID))

	req, err := r.validate(in)
	if err != nil {
		r.emitAudit(ctx, observability.AuditInvalidInput, in, map[string]string{
			"code":  string(apperrors.CodeOf(err)),
			"error": err.Error(),
		})
		return nil, err
	}
	req.UserID = userID

	h, ok := r.handlers[req.Domain]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRoutingError,
			fmt.Sprintf("No handler registered for domain %q", req.Domain))
	}

	return &Admission{Request: req, handler: h}, nil
}

func (r *Router) validate(in Inbound) (domain.Request, error) {
	rawDomain := strings.TrimSpace(in.Domain)
	if rawDomain == "" {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidRequest, "domain is required")
	}
	d, ok := domain.ParseDomain(rawDomain)
	if !ok {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidDomain,
			fmt.Sprintf("Unknown domain %q", rawDomain))
	}

	if in.Prompt == "" {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidRequest, "prompt is required")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidPrompt, "Prompt must not be blank")
	}
	if t := in.Options.Temperature; t != nil && (*t < 0 || *t > maxTemperature) {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("temperature must be between 0 and %.0f", maxTemperature))
	}
	if in.Options.MaxTokens < 0 {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidRequest, "maxTokens must not be negative")
	}

	// Length is measured on the sanitized text, the same text the handler sees.
	// NFKC can expand a rune into several.
	prompt := Sanitize(in.Prompt)
	if prompt == "" {
		return domain.Request{}, apperrors.New(apperrors.CodeInvalidPrompt, "Prompt is empty after sanitization")
	}
	if r.maxPromptLength > 0 && utf8.RuneCountInString(prompt) > r.maxPromptLength {
		return domain.Request{}, apperrors.New(apperrors.CodePromptTooLong,
			fmt.Sprintf("Prompt exceeds %d characters", r.maxPromptLength))
	}

	return domain.Request{
		Domain: d,
		Prompt: prompt,
		Context: domain.RequestContext{
			SessionID: in.Context.SessionID,
			Focus:     Sanitize(in.Context.Focus),
		},
		Options: domain.RequestOptions{
			Temperature: in.Options.Temperature,
			MaxTokens:   in.Options.MaxTokens,
			Stream:      in.Options.Stream,
			Model:       strings.TrimSpace(in.Options.Model),
		},
	}, nil
}

// Dispatch runs the admitted request through its handler.
func (r *Router) Dispatch(ctx context.Context, adm *Admission) (*handler.Result, error) {
	var res *handler.Result
	err := r.guard(ctx, adm, func(ctx context.Context) error {
		var err error
		res, err = adm.handler.Handle(ctx, adm.Request)
		return err
	})
	return res, err
}

// DispatchStream runs the admitted request through its handler in streaming
// mode. A partial result may accompany an error.
func (r *Router) DispatchStream(ctx context.Context, adm *Admission, emit func(string) error) (*handler.Result, error) {
	var res *handler.Result
	err := r.guard(ctx, adm, func(ctx context.Context) error {
		var err error
		res, err = adm.handler.HandleStream(ctx, adm.Request, emit)
		return err
	})
	return res, err
}

// guard converts handler panics and uncategorized errors into ROUTING_ERROR.
func (r *Router) guard(ctx context.Context, adm *Admission, fn func(ctx context.Context) error) (err error) {
	ctx = observability.WithUserID(ctx, string(adm.Request.UserID))
	ctx, span := observability.Tracer().Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("farum.domain", string(adm.Request.Domain)),
		attribute.Bool("farum.stream", adm.Request.Options.Stream),
	))
	log := observability.LoggerFromContext(ctx).With("domain", adm.Request.Domain)

	defer func() {
		if p := recover(); p != nil {
			log.Error("domain handler panicked", "panic", fmt.Sprint(p))
			err = apperrors.New(apperrors.CodeRoutingError, "The request could not be routed")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		}
		span.End()
	}()

	err = fn(ctx)
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); !ok {
		log.Error("domain handler returned an uncategorized error", "error", err)
		return apperrors.Wrap(apperrors.CodeRoutingError, "The request could not be routed", err)
	}
	return err
}

func (r *Router) emitAudit(ctx context.Context, event observability.AuditEvent, in Inbound, attrs map[string]string) {
	if r.audit == nil {
		return
	}
	attrs["client_addr"] = in.ClientAddr
	attrs["domain"] = in.Domain
	observability.NonCritical(ctx, "audit."+string(event), func(ctx context.Context) error {
		return r.audit.Audit(ctx, event, attrs)
	})
}
