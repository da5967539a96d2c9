// Package pipeline assembles the request pipeline from configuration, a
// storage backend and a language-model provider.
package pipeline

import (
	"fmt"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/app/completion"
	"github.com/PabloGalante/farum-gateway/internal/app/conversation"
	"github.com/PabloGalante/farum-gateway/internal/app/enrichment"
	"github.com/PabloGalante/farum-gateway/internal/app/handler"
	"github.com/PabloGalante/farum-gateway/internal/app/identity"
	"github.com/PabloGalante/farum-gateway/internal/app/interaction"
	"github.com/PabloGalante/farum-gateway/internal/app/prompt"
	"github.com/PabloGalante/farum-gateway/internal/app/ratelimit"
	"github.com/PabloGalante/farum-gateway/internal/app/router"
	"github.com/PabloGalante/farum-gateway/internal/config"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

// Storage is a backend implementing every persistence port.
type Storage interface {
	domain.ContextStore
	domain.SessionStore
	domain.MemoryStore
	domain.RateLimitStore
	domain.InteractionStore
}

type Pipeline struct {
	Router   *router.Router
	Sessions *conversation.Service
	Identity *identity.Resolver
	Limiter  *ratelimit.Limiter
}

// Build wires every component. A nil estimator defaults to the ratio
// estimator.
func Build(cfg *config.Config, store Storage, llm domain.LLMClient, estimator completion.TokenEstimator) (*Pipeline, error) {
	resolver, err := identity.NewResolver(identity.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("build identity resolver: %w", err)
	}

	limiter := ratelimit.NewLimiter(store, ratelimit.Limits{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		RequestsPerDay:    cfg.RateLimit.RequestsPerDay,
		TokensPerDay:      cfg.RateLimit.TokensPerDay,
	})

	sessions := conversation.NewService(store, store, cfg.SessionIdleTimeout)

	templates, err := prompt.DefaultTemplates()
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	deps := handler.Deps{
		Contexts: store,
		Enricher: enrichment.NewEngine(store, sessions, enrichment.DefaultOptions()),
		Compiler: prompt.NewCompiler(templates),
		Completion: completion.NewClient(llm, completion.Config{
			DefaultModel:       cfg.ModelName,
			DefaultTemperature: cfg.Completion.DefaultTemperature,
			DefaultMaxTokens:   cfg.Completion.DefaultMaxTokens,
			MaxTokensCeiling:   cfg.Completion.MaxResponseTokens,
			Timeout:            cfg.Completion.Timeout,
		}, estimator),
		Sessions:           sessions,
		Insights:           enrichment.NewLexicalExtractor(),
		Interactions:       interaction.NewLogger(store),
		Usage:              limiter,
		MaxPromptLength:    cfg.MaxPromptLength,
		DefaultTemperature: cfg.Completion.DefaultTemperature,
	}

	r := router.New(resolver, limiter, observability.NewLogAuditSink(), cfg.MaxPromptLength)
	for _, spec := range handler.DefaultSpecs() {
		r.Register(handler.New(spec, deps))
	}

	return &Pipeline{
		Router:   r,
		Sessions: sessions,
		Identity: resolver,
		Limiter:  limiter,
	}, nil
}

// DevToken issues a session credential, for local development and tests.
func (p *Pipeline) DevToken(userID string, ttl time.Duration) (string, error) {
	return p.Identity.Issue(domain.UserID(userID), ttl)
}
