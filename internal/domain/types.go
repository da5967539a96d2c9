package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string
type UserID string
type MemoryID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Domain is a named capability area. It selects the handler, the system
// instructions and the context fields that apply to a request.
type Domain string

const (
	DomainSoul   Domain = "soul"   // Identity and purpose, relies on continuity
	DomainWork   Domain = "work"   // Workflows and productivity
	DomainBrand  Domain = "brand"  // Brand voice and messaging
	DomainHealth Domain = "health" // Tracked metrics and wellbeing goals
)

// Domains is the fixed enumerated domain set, in display order.
var Domains = []Domain{DomainSoul, DomainWork, DomainBrand, DomainHealth}

// ParseDomain reports whether s names one of the enumerated domains.
func ParseDomain(s string) (Domain, bool) {
	for _, d := range Domains {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

type Timestamp = time.Time

// NewID returns a random identifier for sessions, memory rows and log entries.
func NewID() string {
	return uuid.NewString()
}
