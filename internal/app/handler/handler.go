// Package handler runs one domain's request lifecycle: context fetch,
// optional enrichment, compilation, completion, and the post-completion
// bookkeeping (session, memory, learned context, interaction log, usage).
//
// Domains differ only in their system instructions, the context fields they
// inject and whether they enrich; every handler is the same Handler value
// built from a different Spec.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/farum-gateway/internal/app/completion"
	"github.com/PabloGalante/farum-gateway/internal/app/enrichment"
	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

// Spec selects what varies between domains.
type Spec struct {
	Domain domain.Domain
	// Enrich runs the enrichment engine before compilation.
	Enrich bool
}

// DefaultSpecs returns one spec per domain. Only soul relies on continuity
// enrichment.
func DefaultSpecs() []Spec {
	return []Spec{
		{Domain: domain.DomainSoul, Enrich: true},
		{Domain: domain.DomainWork},
		{Domain: domain.DomainBrand},
		{Domain: domain.DomainHealth},
	}
}

type Compiler interface {
	Compile(d domain.Domain, userPrompt string, uctx *domain.UserContext) domain.CompiledPrompt
}

type Enricher interface {
	Enrich(ctx context.Context, in enrichment.Input) (*enrichment.Result, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt domain.CompiledPrompt, opts completion.Options) (*completion.Result, error)
	Stream(ctx context.Context, prompt domain.CompiledPrompt, opts completion.Options, emit func(string) error) (*completion.Result, error)
}

type SessionManager interface {
	ResolveActiveSession(ctx context.Context, userID domain.UserID, d domain.Domain) (domain.SessionID, error)
	UpsertSession(ctx context.Context, userID domain.UserID, d domain.Domain, update domain.SessionUpdate) (domain.SessionID, error)
	SaveMemory(ctx context.Context, entry *domain.MemoryEntry) error
}

type InteractionLogger interface {
	Log(ctx context.Context, entry *domain.InteractionLogEntry)
}

type UsageRecorder interface {
	Record(ctx context.Context, key domain.UserID, tokens int)
}

// Deps are shared by every domain handler.
type Deps struct {
	Contexts           domain.ContextStore
	Enricher           Enricher
	Compiler           Compiler
	Completion         Completer
	Sessions           SessionManager
	Insights           domain.InsightExtractor
	Interactions       InteractionLogger
	Usage              UsageRecorder
	MaxPromptLength    int
	DefaultTemperature float32
}

// Result is the uniform success shape of every domain.
type Result struct {
	Content      string
	TokensUsed   int
	Estimated    bool
	Model        string
	FinishReason string
	SessionID    domain.SessionID
	Timestamp    time.Time
}

type Handler struct {
	spec Spec
	deps Deps
	now  func() time.Time
}

func New(spec Spec, deps Deps) *Handler {
	return &Handler{spec: spec, deps: deps, now: time.Now}
}

// WithClock replaces the time source.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) Domain() domain.Domain { return h.spec.Domain }

// Handle runs a blocking exchange.
func (h *Handler) Handle(ctx context.Context, req domain.Request) (*Result, error) {
	ctx, span := h.start(ctx, "handle", req)
	defer span.End()

	compiled, err := h.prepare(ctx, req)
	if err != nil {
		return nil, h.fail(span, err)
	}

	res, err := h.deps.Completion.Complete(ctx, compiled, completionOptions(req))
	if err != nil {
		return nil, h.fail(span, err)
	}

	return h.finish(ctx, req, res, false), nil
}

// HandleStream runs a streaming exchange, pushing fragments to emit in
// order. When the stream is cancelled or the emitter fails, bookkeeping
// still runs on whatever was produced, possibly nothing, and both the
// partial Result and the error are returned. A provider failure with no
// content writes nothing.
func (h *Handler) HandleStream(ctx context.Context, req domain.Request, emit func(string) error) (*Result, error) {
	ctx, span := h.start(ctx, "handle_stream", req)
	defer span.End()

	compiled, err := h.prepare(ctx, req)
	if err != nil {
		return nil, h.fail(span, err)
	}

	res, streamErr := h.deps.Completion.Stream(ctx, compiled, completionOptions(req), emit)
	if streamErr != nil && (res == nil || (res.Content == "" && res.FinishReason != completion.FinishCancelled)) {
		return nil, h.fail(span, streamErr)
	}

	out := h.finish(ctx, req, res, true)
	if streamErr != nil {
		return out, h.fail(span, streamErr)
	}
	return out, nil
}

func (h *Handler) start(ctx context.Context, op string, req domain.Request) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "handler."+op, trace.WithAttributes(
		attribute.String("farum.domain", string(h.spec.Domain)),
		attribute.Bool("farum.enrich", h.spec.Enrich),
		attribute.Int("farum.prompt_length", len(req.Prompt)),
	))
}

// prepare runs every step up to the completion call.
func (h *Handler) prepare(ctx context.Context, req domain.Request) (domain.CompiledPrompt, error) {
	if h.deps.MaxPromptLength > 0 && utf8.RuneCountInString(req.Prompt) > h.deps.MaxPromptLength {
		return domain.CompiledPrompt{}, apperrors.New(apperrors.CodePromptTooLong,
			fmt.Sprintf("Prompt exceeds %d characters", h.deps.MaxPromptLength))
	}

	uctx, err := h.deps.Contexts.GetUserContext(ctx, req.UserID, h.spec.Domain)
	if err != nil {
		return domain.CompiledPrompt{}, fmt.Errorf("load user context: %w", err)
	}

	userPrompt := req.Prompt
	if h.spec.Enrich && h.deps.Enricher != nil {
		enriched, err := h.deps.Enricher.Enrich(ctx, enrichment.Input{
			UserID:       req.UserID,
			Domain:       h.spec.Domain,
			Prompt:       req.Prompt,
			CurrentFocus: req.Context.Focus,
			Context:      uctx,
		})
		if err != nil {
			// Enrichment is advisory; the raw prompt still gets an answer.
			observability.LoggerFromContext(ctx).Warn("enrichment failed, using raw prompt",
				"domain", h.spec.Domain,
				"error", err,
			)
		} else {
			userPrompt = enriched.EnrichedPrompt
		}
	}

	return h.deps.Compiler.Compile(h.spec.Domain, userPrompt, uctx), nil
}

// finish performs the post-completion writes. None of them can fail the
// request, and all run detached from the caller's cancellation so a dropped
// stream is still accounted for.
func (h *Handler) finish(ctx context.Context, req domain.Request, res *completion.Result, stream bool) *Result {
	persistCtx := context.WithoutCancel(ctx)
	log := observability.LoggerFromContext(ctx).With("domain", h.spec.Domain)
	now := h.now()

	insights := h.deps.Insights.Extract(req.Prompt, res.Content)

	sessionID := req.Context.SessionID
	if sessionID == "" {
		active, err := h.deps.Sessions.ResolveActiveSession(persistCtx, req.UserID, h.spec.Domain)
		if err != nil {
			log.Warn("resolve active session failed", "error", err)
		}
		sessionID = active
	}
	upserted, err := h.deps.Sessions.UpsertSession(persistCtx, req.UserID, h.spec.Domain, domain.SessionUpdate{
		SessionID:     sessionID,
		MessageDelta:  1,
		TokensDelta:   res.TokensUsed,
		SelectedFocus: req.Context.Focus,
		KeyTopics:     insights.Topics,
		Sentiment:     insights.Sentiment,
	})
	if err != nil {
		log.Warn("session upsert failed", "error", err)
	} else {
		sessionID = upserted
	}

	observability.NonCritical(ctx, "memory.save_user", func(ctx context.Context) error {
		return h.deps.Sessions.SaveMemory(ctx, &domain.MemoryEntry{
			UserID:    req.UserID,
			Domain:    h.spec.Domain,
			SessionID: sessionID,
			Role:      domain.RoleUser,
			Content:   req.Prompt,
			Insights:  h.deps.Insights.Extract(req.Prompt, ""),
			Timestamp: now,
		})
	})
	observability.NonCritical(ctx, "memory.save_assistant", func(ctx context.Context) error {
		return h.deps.Sessions.SaveMemory(ctx, &domain.MemoryEntry{
			UserID:     req.UserID,
			Domain:     h.spec.Domain,
			SessionID:  sessionID,
			Role:       domain.RoleAssistant,
			Content:    res.Content,
			TokensUsed: res.TokensUsed,
			Insights:   insights,
			Timestamp:  now,
		})
	})

	if learned := learnedState(h.spec.Domain, req.Context.Focus, insights.Topics); learned != nil {
		observability.NonCritical(ctx, "context.merge", func(ctx context.Context) error {
			return h.deps.Contexts.MergeDomainState(ctx, req.UserID, learned)
		})
	}

	temperature := h.deps.DefaultTemperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}
	h.deps.Interactions.Log(persistCtx, &domain.InteractionLogEntry{
		UserID:          req.UserID,
		Domain:          h.spec.Domain,
		SessionID:       sessionID,
		Prompt:          req.Prompt,
		Response:        res.Content,
		TokensUsed:      res.TokensUsed,
		TokensEstimated: res.Estimated,
		Model:           res.Model,
		FinishReason:    res.FinishReason,
		Temperature:     temperature,
		StreamEnabled:   stream,
		Timestamp:       now,
	})

	h.deps.Usage.Record(persistCtx, req.UserID, res.TokensUsed)

	log.Info("exchange completed",
		"session_id", sessionID,
		"tokens", res.TokensUsed,
		"estimated", res.Estimated,
		"stream", stream,
		"finish_reason", res.FinishReason,
	)

	return &Result{
		Content:      res.Content,
		TokensUsed:   res.TokensUsed,
		Estimated:    res.Estimated,
		Model:        res.Model,
		FinishReason: res.FinishReason,
		SessionID:    sessionID,
		Timestamp:    now,
	}
}

// fail converts any failure into the domain-tagged handler error. Input
// validation errors pass through with their own code.
func (h *Handler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	appErr, ok := apperrors.As(err)
	if ok {
		switch appErr.Code {
		case apperrors.CodePromptTooLong, apperrors.CodeInvalidPrompt, apperrors.CodeInvalidRequest:
			return appErr
		}
		if appErr.Code.IsHandlerCode() {
			return appErr
		}
	}

	msg := err.Error()
	retryable := false
	if ok {
		msg = appErr.Error()
		retryable = appErr.Retryable
	}
	if errors.Is(err, context.Canceled) {
		msg = "Request cancelled"
	}
	return &apperrors.Error{
		Code:      apperrors.HandlerCode(string(h.spec.Domain)),
		Message:   msg,
		Retryable: retryable,
		Cause:     err,
	}
}

func completionOptions(req domain.Request) completion.Options {
	return completion.Options{
		Model:       req.Options.Model,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}
}

// learnedState is what one exchange teaches about the user: the topics seen
// become tags and, for domains that track it, the focus becomes last focus.
func learnedState(d domain.Domain, focus string, topics []string) domain.DomainState {
	switch d {
	case domain.DomainSoul:
		if focus == "" && len(topics) == 0 {
			return nil
		}
		return &domain.SoulState{LastFocus: focus, Tags: topics}
	case domain.DomainWork:
		if focus == "" && len(topics) == 0 {
			return nil
		}
		return &domain.WorkState{LastFocus: focus, Tags: topics}
	}
	if len(topics) == 0 {
		return nil
	}
	return domain.WithTags(d, topics)
}
