package enrichment

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

const (
	maxKeywords    = 10
	maxActionItems = 5
	minKeywordLen  = 4
)

var stopWords = toSet(
	"about", "above", "after", "again", "also", "been", "before", "being", "below", "between",
	"both", "could", "does", "doing", "down", "during", "each", "from", "further", "have",
	"having", "here", "into", "just", "like", "more", "most", "much", "need", "only", "other",
	"over", "really", "same", "should", "some", "such", "than", "that", "their", "them", "then",
	"there", "these", "they", "this", "those", "through", "under", "until", "very", "want",
	"what", "when", "where", "which", "while", "will", "with", "would", "your", "yours",
	"yourself", "because", "can't", "don't", "it's", "i'm", "know", "think", "things", "something",
	"make", "feel", "maybe", "well", "even", "still", "every", "many", "might", "must",
)

// topicKeywords maps each fixed topic to the words that signal it.
var topicKeywords = map[string][]string{
	"purpose":       {"purpose", "meaning", "calling", "mission", "values", "identity"},
	"relationships": {"partner", "friend", "friends", "family", "relationship", "marriage", "parents"},
	"career":        {"career", "job", "boss", "promotion", "interview", "salary", "colleague"},
	"productivity":  {"workflow", "deadline", "focus", "procrastinate", "schedule", "routine", "tasks"},
	"health":        {"sleep", "exercise", "diet", "energy", "steps", "weight", "stress"},
	"emotions":      {"anxious", "anxiety", "sad", "angry", "lonely", "happy", "fear", "overwhelmed"},
	"creativity":    {"creative", "writing", "design", "art", "ideas", "story", "brand"},
	"finance":       {"money", "budget", "debt", "savings", "income", "invest"},
	"spirituality":  {"spiritual", "soul", "faith", "meditation", "gratitude", "prayer"},
	"growth":        {"learn", "growth", "habit", "habits", "improve", "goal", "goals"},
}

var (
	positiveWords = toSet("good", "great", "happy", "grateful", "excited", "calm", "love", "proud",
		"hopeful", "better", "confident", "energized", "joy", "peaceful", "progress")
	negativeWords = toSet("bad", "sad", "angry", "anxious", "worried", "stressed", "tired", "lonely",
		"afraid", "overwhelmed", "stuck", "worse", "hate", "frustrated", "lost")
	actionVerbs = toSet("try", "start", "schedule", "write", "practice", "commit", "plan", "list",
		"reach", "call", "set", "take", "stop", "begin", "consider", "journal", "track", "book")
)

var (
	wordRe     = regexp.MustCompile(`[\p{L}']+`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// LexicalExtractor derives Insights with word-list heuristics. It is
// deterministic and makes no model calls.
type LexicalExtractor struct{}

func NewLexicalExtractor() *LexicalExtractor {
	return &LexicalExtractor{}
}

var _ domain.InsightExtractor = (*LexicalExtractor)(nil)

func (LexicalExtractor) Extract(prompt, response string) domain.Insights {
	text := prompt + "\n" + response
	words := tokenize(text)

	return domain.Insights{
		Keywords:    keywords(words),
		Topics:      topics(words),
		Sentiment:   sentiment(words),
		ActionItems: actionItems(response),
	}
}

func tokenize(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, w := range raw {
		w = strings.Trim(w, "'")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func keywords(words []string) []string {
	counts := make(map[string]int)
	for _, w := range words {
		if len([]rune(w)) < minKeywordLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}
	return topN(counts, maxKeywords, 1)
}

func topics(words []string) []string {
	present := toSet(words...)
	var out []string
	for topic, signals := range topicKeywords {
		for _, s := range signals {
			if _, ok := present[s]; ok {
				out = append(out, topic)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

func sentiment(words []string) domain.Sentiment {
	score := 0
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			score++
		}
		if _, ok := negativeWords[w]; ok {
			score--
		}
	}
	switch {
	case score > 0:
		return domain.SentimentPositive
	case score < 0:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

func actionItems(response string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(response, -1) {
		s = strings.TrimSpace(strings.TrimLeftFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || r == '-' || r == '*' || unicode.IsDigit(r)
		}))
		if s == "" {
			continue
		}
		for _, w := range tokenize(s) {
			if _, ok := actionVerbs[w]; ok {
				out = append(out, s)
				break
			}
		}
		if len(out) == maxActionItems {
			break
		}
	}
	return out
}

// topN returns up to n keys with count >= minCount, by count descending and
// then alphabetically so the result is deterministic.
func topN(counts map[string]int, n, minCount int) []string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c >= minCount {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
