package domain

import (
	"slices"
	"time"
)

// Preferences are shared across every domain for a user.
type Preferences struct {
	CommunicationStyle string
	FocusAreas         []string

	// CrossContextDisabled turns off prompt enrichment entirely. It is a
	// privacy switch, not a tuning knob.
	CrossContextDisabled bool
}

// DomainState is the per-domain part of a UserContext. Exactly one concrete
// type exists per Domain.
type DomainState interface {
	Domain() Domain
	// Merge folds a newer state of the same domain into the receiver and
	// returns the result. Scalars are overwritten only when non-empty, lists
	// are unioned.
	Merge(other DomainState) DomainState
	isDomainState()
}

// UserContext is the per-(user, domain) document read before every compile.
type UserContext struct {
	UserID      UserID
	Domain      Domain
	Preferences Preferences
	State       DomainState
	UpdatedAt   time.Time
}

// HasPreferences reports whether any shared preference field is set.
func (c *UserContext) HasPreferences() bool {
	if c == nil {
		return false
	}
	return c.Preferences.CommunicationStyle != "" || len(c.Preferences.FocusAreas) > 0
}

// EmptyState returns the zero state for d, or nil for an unknown domain.
func EmptyState(d Domain) DomainState {
	switch d {
	case DomainSoul:
		return &SoulState{}
	case DomainWork:
		return &WorkState{}
	case DomainBrand:
		return &BrandState{}
	case DomainHealth:
		return &HealthState{}
	}
	return nil
}

type SoulState struct {
	Archetype string
	Themes    []string
	LastFocus string
	Tags      []string
}

func (*SoulState) Domain() Domain { return DomainSoul }
func (*SoulState) isDomainState() {}

func (s *SoulState) Merge(other DomainState) DomainState {
	o, ok := other.(*SoulState)
	if !ok || o == nil {
		return s
	}
	return &SoulState{
		Archetype: pick(o.Archetype, s.Archetype),
		Themes:    union(s.Themes, o.Themes),
		LastFocus: pick(o.LastFocus, s.LastFocus),
		Tags:      union(s.Tags, o.Tags),
	}
}

type WorkState struct {
	Workflow  string
	Tools     []string
	LastFocus string
	Tags      []string
}

func (*WorkState) Domain() Domain { return DomainWork }
func (*WorkState) isDomainState() {}

func (s *WorkState) Merge(other DomainState) DomainState {
	o, ok := other.(*WorkState)
	if !ok || o == nil {
		return s
	}
	return &WorkState{
		Workflow:  pick(o.Workflow, s.Workflow),
		Tools:     union(s.Tools, o.Tools),
		LastFocus: pick(o.LastFocus, s.LastFocus),
		Tags:      union(s.Tags, o.Tags),
	}
}

type BrandState struct {
	BrandVoice string
	Audience   string
	Tags       []string
}

func (*BrandState) Domain() Domain { return DomainBrand }
func (*BrandState) isDomainState() {}

func (s *BrandState) Merge(other DomainState) DomainState {
	o, ok := other.(*BrandState)
	if !ok || o == nil {
		return s
	}
	return &BrandState{
		BrandVoice: pick(o.BrandVoice, s.BrandVoice),
		Audience:   pick(o.Audience, s.Audience),
		Tags:       union(s.Tags, o.Tags),
	}
}

type HealthState struct {
	Metrics []string
	Goals   []string
	Tags    []string
}

func (*HealthState) Domain() Domain { return DomainHealth }
func (*HealthState) isDomainState() {}

func (s *HealthState) Merge(other DomainState) DomainState {
	o, ok := other.(*HealthState)
	if !ok || o == nil {
		return s
	}
	return &HealthState{
		Metrics: union(s.Metrics, o.Metrics),
		Goals:   union(s.Goals, o.Goals),
		Tags:    union(s.Tags, o.Tags),
	}
}

// WithTags returns a state of the same domain that only carries tags, ready
// to be merged into a stored state.
func WithTags(d Domain, tags []string) DomainState {
	switch d {
	case DomainSoul:
		return &SoulState{Tags: tags}
	case DomainWork:
		return &WorkState{Tags: tags}
	case DomainBrand:
		return &BrandState{Tags: tags}
	case DomainHealth:
		return &HealthState{Tags: tags}
	}
	return nil
}

// maxTags bounds accumulated tag lists so documents do not grow forever.
const maxTags = 50

func pick(newer, older string) string {
	if newer != "" {
		return newer
	}
	return older
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) > maxTags {
		out = out[len(out)-maxTags:]
	}
	return out
}
