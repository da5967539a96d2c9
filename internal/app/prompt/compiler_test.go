package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

func TestCompileEmptyContextHasNoContextLines(t *testing.T) {
	c := NewCompiler(MustDefaultTemplates())

	uctx := &domain.UserContext{UserID: "u1", Domain: domain.DomainSoul, State: domain.EmptyState(domain.DomainSoul)}
	out := c.Compile(domain.DomainSoul, "Who am I?", uctx)

	require.Equal(t, "Who am I?", out.UserPrompt)
	require.Contains(t, out.SystemPrompt, "Domain: soul")
	require.NotContains(t, out.SystemPrompt, "User context:")
	require.NotContains(t, out.SystemPrompt, "communication style")
}

func TestCompileAppendsOnlyPresentFields(t *testing.T) {
	c := NewCompiler(MustDefaultTemplates())

	uctx := &domain.UserContext{
		Domain: domain.DomainBrand,
		Preferences: domain.Preferences{
			CommunicationStyle: "direct",
		},
		State: &domain.BrandState{BrandVoice: "playful"},
	}
	out := c.Compile(domain.DomainBrand, "Write a tagline", uctx)

	require.Contains(t, out.SystemPrompt, "- Preferred communication style: direct")
	require.Contains(t, out.SystemPrompt, "- Brand voice: playful")
	require.NotContains(t, out.SystemPrompt, "Target audience")
	require.NotContains(t, out.SystemPrompt, "Focus areas")
	require.NotContains(t, out.SystemPrompt, ": \n")
}

func TestCompilePerDomainFields(t *testing.T) {
	c := NewCompiler(MustDefaultTemplates())

	cases := []struct {
		d     domain.Domain
		state domain.DomainState
		want  string
	}{
		{domain.DomainSoul, &domain.SoulState{Archetype: "explorer"}, "Known archetype: explorer"},
		{domain.DomainWork, &domain.WorkState{Workflow: "kanban"}, "Preferred workflow: kanban"},
		{domain.DomainHealth, &domain.HealthState{Metrics: []string{"sleep", "steps"}}, "Tracked metrics: sleep, steps"},
	}
	for _, tc := range cases {
		out := c.Compile(tc.d, "hi", &domain.UserContext{Domain: tc.d, State: tc.state})
		require.Contains(t, out.SystemPrompt, tc.want, tc.d)
	}
}

func TestCompileIsPure(t *testing.T) {
	c := NewCompiler(MustDefaultTemplates())
	uctx := &domain.UserContext{
		Domain:      domain.DomainWork,
		Preferences: domain.Preferences{FocusAreas: []string{"planning", "focus"}},
		State:       &domain.WorkState{Tools: []string{"notion"}, Tags: []string{"career"}},
	}

	first := c.Compile(domain.DomainWork, "Plan my week", uctx)
	second := c.Compile(domain.DomainWork, "Plan my week", uctx)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compile not deterministic (-first +second):\n%s", diff)
	}
}

func TestParseTemplatesRequiresEveryDomain(t *testing.T) {
	_, err := ParseTemplates([]byte("shared: hi\ndomains:\n  soul: x\n"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "work") || strings.Contains(err.Error(), "brand"))
}

func TestDefaultTemplatesCoverEveryDomain(t *testing.T) {
	tpl, err := DefaultTemplates()
	require.NoError(t, err)
	for _, d := range domain.Domains {
		require.NotEmpty(t, tpl.Domains[d], "domain %s", d)
	}
}

func TestParseTemplatesRejectsInvalidYAML(t *testing.T) {
	_, err := ParseTemplates([]byte("shared: [unterminated"))
	require.Error(t, err)
}

func TestSubstitute(t *testing.T) {
	got := Substitute("Hello {{name}}, your {{ focus }} and {{unknown}}", map[string]string{
		"name":  "Ada",
		"focus": "purpose",
	})
	require.Equal(t, "Hello Ada, your purpose and {{unknown}}", got)
}

func TestSubstituteNoPlaceholders(t *testing.T) {
	require.Equal(t, "plain {text}", Substitute("plain {text}", nil))
}
