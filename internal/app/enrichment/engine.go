// Package enrichment prepends derived context (stated preferences, recent
// topics, cross-domain themes, current focus) to a raw user prompt, and
// extracts the insights stored with every memory row.
package enrichment

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const (
	maxRecentTopics = 5
	maxCommonThemes = 5

	// minThemeRows is how many distinct memory rows a theme must appear in
	// to count as recurring.
	minThemeRows = 2
)

// MemoryReader is the read side of the conversation memory.
type MemoryReader interface {
	GetRecentMemory(ctx context.Context, userID domain.UserID, d domain.Domain, limit int) ([]*domain.MemoryEntry, error)
	GetCrossDomainInsights(ctx context.Context, userID domain.UserID, limit int) ([]domain.Insights, error)
}

// Options toggles each enrichment block.
type Options struct {
	IncludePreferences bool
	IncludeRecent      bool
	IncludeCrossDomain bool
	IncludeFocus       bool
	RecentLimit        int
	CrossDomainLimit   int
}

func DefaultOptions() Options {
	return Options{
		IncludePreferences: true,
		IncludeRecent:      true,
		IncludeCrossDomain: true,
		IncludeFocus:       true,
		RecentLimit:        20,
		CrossDomainLimit:   50,
	}
}

type Input struct {
	UserID       domain.UserID
	Domain       domain.Domain
	Prompt       string
	CurrentFocus string
	// Context is the already fetched user context. When nil the engine
	// fetches it.
	Context *domain.UserContext
}

type Result struct {
	OriginalPrompt string
	EnrichedPrompt string
	AddedContext   []string
	RelevanceScore float64
}

type Engine struct {
	contexts domain.ContextStore
	memory   MemoryReader
	opts     Options
}

func NewEngine(contexts domain.ContextStore, memory MemoryReader, opts Options) *Engine {
	return &Engine{contexts: contexts, memory: memory, opts: opts}
}

// Enrich builds the enriched prompt. With cross-context enrichment disabled
// by the user the prompt is returned unmodified with no context and a zero
// score.
func (e *Engine) Enrich(ctx context.Context, in Input) (*Result, error) {
	unchanged := &Result{
		OriginalPrompt: in.Prompt,
		EnrichedPrompt: in.Prompt,
		AddedContext:   []string{},
	}

	uctx := in.Context
	if uctx == nil {
		var err error
		uctx, err = e.contexts.GetUserContext(ctx, in.UserID, in.Domain)
		if err != nil {
			return nil, fmt.Errorf("enrichment: load user context: %w", err)
		}
	}
	if uctx.Preferences.CrossContextDisabled {
		return unchanged, nil
	}

	var (
		recent []*domain.MemoryEntry
		shared []domain.Insights
	)
	g, gctx := errgroup.WithContext(ctx)
	if e.opts.IncludeRecent {
		g.Go(func() error {
			rows, err := e.memory.GetRecentMemory(gctx, in.UserID, in.Domain, e.opts.RecentLimit)
			if err != nil {
				return fmt.Errorf("enrichment: recent memory: %w", err)
			}
			recent = rows
			return nil
		})
	}
	if e.opts.IncludeCrossDomain {
		g.Go(func() error {
			insights, err := e.memory.GetCrossDomainInsights(gctx, in.UserID, e.opts.CrossDomainLimit)
			if err != nil {
				return fmt.Errorf("enrichment: cross-domain insights: %w", err)
			}
			shared = insights
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		paragraphs []string
		score      float64
	)

	if e.opts.IncludePreferences {
		if summary := preferenceSummary(uctx); summary != "" {
			paragraphs = append(paragraphs, "User preferences: "+summary+".")
			score += 0.3
		}
	}

	recentTopics := RecentTopics(recent, maxRecentTopics)
	if len(recentTopics) > 0 {
		paragraphs = append(paragraphs, "Recent topics in this area: "+strings.Join(recentTopics, ", ")+".")
		if len(recentTopics) >= 3 {
			score += 0.2
		}
	}

	themes := CommonThemes(shared, maxCommonThemes)
	if len(themes) > 0 {
		paragraphs = append(paragraphs, "Recurring themes across conversations: "+strings.Join(themes, ", ")+".")
		if len(themes) >= 3 {
			score += 0.2
		}
	}

	if focus := strings.TrimSpace(in.CurrentFocus); e.opts.IncludeFocus && focus != "" {
		paragraphs = append(paragraphs, "Current focus: "+focus+".")
		score += 0.1
	}

	if len(paragraphs) == 0 {
		return unchanged, nil
	}

	score = min(score+0.2, 1.0)

	observability.LoggerFromContext(ctx).Debug("prompt enriched",
		"domain", in.Domain,
		"blocks", len(paragraphs),
		"relevance", score,
	)

	return &Result{
		OriginalPrompt: in.Prompt,
		EnrichedPrompt: strings.Join(paragraphs, "\n\n") + "\n\n" + in.Prompt,
		AddedContext:   paragraphs,
		RelevanceScore: score,
	}, nil
}

// RecentTopics returns the most frequent topics across rows.
func RecentTopics(rows []*domain.MemoryEntry, n int) []string {
	counts := make(map[string]int)
	for _, r := range rows {
		for _, t := range r.Insights.Topics {
			counts[t]++
		}
	}
	return topN(counts, n, 1)
}

// CommonThemes returns topics and keywords that recur in at least
// minThemeRows distinct rows.
func CommonThemes(insights []domain.Insights, n int) []string {
	counts := make(map[string]int)
	for _, in := range insights {
		seen := make(map[string]struct{})
		for _, v := range append(append([]string{}, in.Topics...), in.Keywords...) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			counts[v]++
		}
	}
	return topN(counts, n, minThemeRows)
}

func preferenceSummary(uctx *domain.UserContext) string {
	var parts []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, label+" "+v)
		}
	}

	add("prefers a communication style that is", uctx.Preferences.CommunicationStyle)
	if len(uctx.Preferences.FocusAreas) > 0 {
		add("focuses on", strings.Join(uctx.Preferences.FocusAreas, ", "))
	}

	switch s := uctx.State.(type) {
	case *domain.SoulState:
		add("identifies with the archetype", s.Archetype)
		add("previously focused on", s.LastFocus)
	case *domain.WorkState:
		add("works with the workflow", s.Workflow)
		add("previously focused on", s.LastFocus)
	case *domain.BrandState:
		add("writes in the brand voice", s.BrandVoice)
	case *domain.HealthState:
		if len(s.Goals) > 0 {
			add("is working toward", strings.Join(s.Goals, ", "))
		}
	}

	return strings.Join(parts, "; ")
}
