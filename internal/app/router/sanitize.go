package router

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Chat-role markers at the start of a line, e.g. "System:".
	roleMarkerRe = regexp.MustCompile(`(?im)^[ \t]*(system|assistant|user|developer)[ \t]*:`)
	// Special tokens of common chat templates, e.g. "<|im_start|>".
	specialTokenRe = regexp.MustCompile(`<\|[^|<>]{0,32}\|>`)

	braceReplacer = strings.NewReplacer("{{", "{ {", "}}", "} }")
)

// Sanitize normalizes a user prompt before it reaches any template: NFKC
// normalization, removal of control and zero-width characters, and
// neutralization of role markers and template braces. Newlines and tabs
// are kept.
func Sanitize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), isInvisible(r):
			return -1
		}
		return r
	}, s)

	s = specialTokenRe.ReplaceAllString(s, "")
	s = roleMarkerRe.ReplaceAllString(s, "$1 -")
	for strings.Contains(s, "{{") || strings.Contains(s, "}}") {
		s = braceReplacer.Replace(s)
	}
	return strings.TrimSpace(s)
}

func isInvisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F: // zero-width space, joiners, marks
		return true
	case r >= 0x202A && r <= 0x202E: // bidi embedding and override
		return true
	case r >= 0x2060 && r <= 0x2069: // word joiner, bidi isolates
		return true
	case r == 0xFEFF, r == 0x00AD:
		return true
	}
	return false
}
