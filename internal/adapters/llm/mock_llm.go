package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

const mockModel = "farum-mock"

// MockLLM answers deterministically. Streaming yields the blocking reply
// word by word, so both modes produce identical content.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) reply(req domain.GenerationRequest) string {
	prompt := req.UserPrompt
	// Enrichment paragraphs come first; echo only the user's own words.
	if i := strings.LastIndex(prompt, "\n\n"); i >= 0 {
		prompt = prompt[i+2:]
	}
	return fmt.Sprintf("I hear you. You said %q. Tell me a little more about how that feels for you.", strings.TrimSpace(prompt))
}

func (m *MockLLM) model(req domain.GenerationRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return mockModel
}

func (m *MockLLM) GenerateReply(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := m.reply(req)
	return &domain.Generation{
		Content:      text,
		TokensUsed:   (len(req.SystemPrompt) + len(req.UserPrompt) + len(text)) / 4,
		Model:        m.model(req),
		FinishReason: "stop",
	}, nil
}

func (m *MockLLM) StreamReply(ctx context.Context, req domain.GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, word := range strings.SplitAfter(m.reply(req), " ") {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}
