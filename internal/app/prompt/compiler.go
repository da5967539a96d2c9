// Package prompt compiles a domain's base instructions and a user's stored
// context into the system+user pair sent to the completion provider.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

//go:embed templates.yaml
var templatesYAML []byte

// maxTagLines bounds how many accumulated tags reach the system prompt.
const maxTagLines = 10

// Templates holds the base system instructions.
type Templates struct {
	Shared  string                   `yaml:"shared"`
	Domains map[domain.Domain]string `yaml:"domains"`
}

// ParseTemplates decodes a templates document and checks every domain has
// instructions.
func ParseTemplates(data []byte) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Templates{}, fmt.Errorf("decode templates: %w", err)
	}
	for _, d := range domain.Domains {
		if strings.TrimSpace(t.Domains[d]) == "" {
			return Templates{}, fmt.Errorf("templates: missing instructions for domain %q", d)
		}
	}
	return t, nil
}

// DefaultTemplates parses the embedded templates.
func DefaultTemplates() (Templates, error) {
	return ParseTemplates(templatesYAML)
}

// MustDefaultTemplates is DefaultTemplates for tests and fixed setups. It
// panics when the embedded document is invalid.
func MustDefaultTemplates() Templates {
	t, err := DefaultTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

// Compiler is a pure function of its templates: the same (domain, prompt,
// context) always yields the same CompiledPrompt.
type Compiler struct {
	templates Templates
}

func NewCompiler(t Templates) *Compiler {
	return &Compiler{templates: t}
}

// Compile builds the system prompt for d and passes userPrompt through
// unchanged. Context lines are only written for fields that are present.
func (c *Compiler) Compile(d domain.Domain, userPrompt string, uctx *domain.UserContext) domain.CompiledPrompt {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.templates.Shared))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(c.templates.Domains[d]))

	if lines := contextLines(uctx); len(lines) > 0 {
		b.WriteString("\n\nUser context:")
		for _, l := range lines {
			b.WriteString("\n- ")
			b.WriteString(l)
		}
	}

	return domain.CompiledPrompt{
		SystemPrompt: b.String(),
		UserPrompt:   userPrompt,
		Context:      uctx,
	}
}

func contextLines(uctx *domain.UserContext) []string {
	if uctx == nil {
		return nil
	}

	var lines []string
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	addList := func(label string, values []string) {
		add(label, joinNonEmpty(values))
	}

	add("Preferred communication style", uctx.Preferences.CommunicationStyle)
	addList("Focus areas", uctx.Preferences.FocusAreas)

	var tags []string
	switch s := uctx.State.(type) {
	case *domain.SoulState:
		add("Known archetype", s.Archetype)
		addList("Recurring themes", s.Themes)
		add("Last focus", s.LastFocus)
		tags = s.Tags
	case *domain.WorkState:
		add("Preferred workflow", s.Workflow)
		addList("Tools in use", s.Tools)
		add("Last focus", s.LastFocus)
		tags = s.Tags
	case *domain.BrandState:
		add("Brand voice", s.BrandVoice)
		add("Target audience", s.Audience)
		tags = s.Tags
	case *domain.HealthState:
		addList("Tracked metrics", s.Metrics)
		addList("Current goals", s.Goals)
		tags = s.Tags
	case nil:
	}
	if len(tags) > maxTagLines {
		tags = tags[len(tags)-maxTagLines:]
	}
	addList("Known interests", tags)

	return lines
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
