package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestMergeKeepsOlderScalarsAndUnionsLists(t *testing.T) {
	stored := &SoulState{Archetype: "sage", Themes: []string{"purpose"}, Tags: []string{"a"}}

	got := stored.Merge(&SoulState{LastFocus: "values", Themes: []string{"purpose", "change"}, Tags: []string{"", "b"}}).(*SoulState)

	if got.Archetype != "sage" || got.LastFocus != "values" {
		t.Fatalf("unexpected scalars %+v", got)
	}
	if fmt.Sprint(got.Themes) != "[purpose change]" || fmt.Sprint(got.Tags) != "[a b]" {
		t.Fatalf("unexpected lists %+v", got)
	}
	if stored.LastFocus != "" {
		t.Fatalf("merge must not mutate the receiver")
	}
}

func TestMergeIgnoresOtherDomains(t *testing.T) {
	stored := &BrandState{BrandVoice: "warm"}
	if got := stored.Merge(&WorkState{Workflow: "kanban"}); got != stored {
		t.Fatalf("expected receiver back, got %+v", got)
	}
}

func TestTagsAreBounded(t *testing.T) {
	var tags []string
	for i := range maxTags + 10 {
		tags = append(tags, fmt.Sprintf("t%d", i))
	}
	got := (&HealthState{}).Merge(&HealthState{Tags: tags}).(*HealthState)
	if len(got.Tags) != maxTags || got.Tags[len(got.Tags)-1] != tags[len(tags)-1] {
		t.Fatalf("expected the newest %d tags, got %d", maxTags, len(got.Tags))
	}
}

func TestEmptyStateAndWithTagsCoverEveryDomain(t *testing.T) {
	for _, d := range Domains {
		if s := EmptyState(d); s == nil || s.Domain() != d {
			t.Fatalf("EmptyState(%s) = %v", d, s)
		}
		if s := WithTags(d, []string{"x"}); s == nil || s.Domain() != d {
			t.Fatalf("WithTags(%s) = %v", d, s)
		}
	}
	if EmptyState("tarot") != nil {
		t.Fatalf("expected nil state for an unknown domain")
	}
}

func TestSessionApplyCapsHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{}

	for i := range 25 {
		s.Apply(SessionUpdate{
			MessageDelta: 1,
			TokensDelta:  10,
			KeyTopics:    []string{fmt.Sprintf("topic-%d", i)},
			Sentiment:    SentimentNeutral,
		}, now.Add(time.Duration(i)*time.Second))
	}

	if s.MessageCount != 25 || s.TokensUsed != 250 {
		t.Fatalf("unexpected counters %d/%d", s.MessageCount, s.TokensUsed)
	}
	if len(s.Context.KeyTopics) != maxKeyTopics || s.Context.KeyTopics[maxKeyTopics-1] != "topic-24" {
		t.Fatalf("unexpected key topics %v", s.Context.KeyTopics)
	}
	if len(s.Context.SentimentTrend) != maxSentimentTrend {
		t.Fatalf("unexpected sentiment trend length %d", len(s.Context.SentimentTrend))
	}
	if !s.LastActivityAt.Equal(now.Add(24 * time.Second)) {
		t.Fatalf("unexpected activity time %v", s.LastActivityAt)
	}
}

func TestSessionApplyKeepsFocusWhenEmpty(t *testing.T) {
	s := &Session{Context: SessionContext{SelectedFocus: "career"}}
	s.Apply(SessionUpdate{MessageDelta: 1}, time.Now())
	if s.Context.SelectedFocus != "career" || len(s.Context.SentimentTrend) != 0 {
		t.Fatalf("unexpected context %+v", s.Context)
	}
}

func TestRateWindowAdd(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	w := RateWindow{}.Add(5, start, time.Minute)
	if w.Requests != 1 || w.Tokens != 5 || !w.WindowStart.Equal(start) {
		t.Fatalf("unexpected first window %+v", w)
	}

	w = w.Add(3, start.Add(30*time.Second), time.Minute)
	if w.Requests != 2 || w.Tokens != 8 || !w.WindowStart.Equal(start) {
		t.Fatalf("unexpected second window %+v", w)
	}

	if w.Expired(start.Add(time.Minute), time.Minute) {
		t.Fatalf("window must still be live at exactly maxAge")
	}
	later := start.Add(61 * time.Second)
	w = w.Add(1, later, time.Minute)
	if w.Requests != 1 || w.Tokens != 1 || !w.WindowStart.Equal(later) {
		t.Fatalf("expected a fresh window, got %+v", w)
	}
}

func TestParseDomain(t *testing.T) {
	if d, ok := ParseDomain("work"); !ok || d != DomainWork {
		t.Fatalf("expected work, got %q %v", d, ok)
	}
	if _, ok := ParseDomain("Work"); ok {
		t.Fatalf("domain names are case sensitive")
	}
}
