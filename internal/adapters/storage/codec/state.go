// Package codec converts domain values to the flat records persisted by the
// document and SQL storage backends.
package codec

import "github.com/PabloGalante/farum-gateway/internal/domain"

// StateRecord is the persisted form of every DomainState variant. Only the
// fields of the owning domain are set.
type StateRecord struct {
	Archetype  string   `firestore:"archetype,omitempty" json:"archetype,omitempty"`
	Themes     []string `firestore:"themes,omitempty" json:"themes,omitempty"`
	LastFocus  string   `firestore:"last_focus,omitempty" json:"lastFocus,omitempty"`
	Workflow   string   `firestore:"workflow,omitempty" json:"workflow,omitempty"`
	Tools      []string `firestore:"tools,omitempty" json:"tools,omitempty"`
	BrandVoice string   `firestore:"brand_voice,omitempty" json:"brandVoice,omitempty"`
	Audience   string   `firestore:"audience,omitempty" json:"audience,omitempty"`
	Metrics    []string `firestore:"metrics,omitempty" json:"metrics,omitempty"`
	Goals      []string `firestore:"goals,omitempty" json:"goals,omitempty"`
	Tags       []string `firestore:"tags,omitempty" json:"tags,omitempty"`
}

func EncodeState(s domain.DomainState) StateRecord {
	switch v := s.(type) {
	case *domain.SoulState:
		return StateRecord{Archetype: v.Archetype, Themes: v.Themes, LastFocus: v.LastFocus, Tags: v.Tags}
	case *domain.WorkState:
		return StateRecord{Workflow: v.Workflow, Tools: v.Tools, LastFocus: v.LastFocus, Tags: v.Tags}
	case *domain.BrandState:
		return StateRecord{BrandVoice: v.BrandVoice, Audience: v.Audience, Tags: v.Tags}
	case *domain.HealthState:
		return StateRecord{Metrics: v.Metrics, Goals: v.Goals, Tags: v.Tags}
	}
	return StateRecord{}
}

// DecodeState rebuilds the state of domain d. Fields that belong to other
// domains are ignored.
func DecodeState(d domain.Domain, r StateRecord) domain.DomainState {
	switch d {
	case domain.DomainSoul:
		return &domain.SoulState{Archetype: r.Archetype, Themes: r.Themes, LastFocus: r.LastFocus, Tags: r.Tags}
	case domain.DomainWork:
		return &domain.WorkState{Workflow: r.Workflow, Tools: r.Tools, LastFocus: r.LastFocus, Tags: r.Tags}
	case domain.DomainBrand:
		return &domain.BrandState{BrandVoice: r.BrandVoice, Audience: r.Audience, Tags: r.Tags}
	case domain.DomainHealth:
		return &domain.HealthState{Metrics: r.Metrics, Goals: r.Goals, Tags: r.Tags}
	}
	return nil
}

// MergeState merges update into the stored record of domain d.
func MergeState(d domain.Domain, stored StateRecord, update domain.DomainState) StateRecord {
	return EncodeState(DecodeState(d, stored).Merge(update))
}
