package llm

import (
	"google.golang.org/genai"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

const topP = float32(0.9)

// buildContent turns a generation request into the genai contents and
// config. The compiled system prompt goes into SystemInstruction and the
// (possibly enriched) user prompt is the single user turn.
func buildContent(req domain.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.UserPrompt, genai.RoleUser),
	}

	temp := req.Temperature
	p := topP

	cfg := &genai.GenerateContentConfig{
		// Official examples use RoleUser for the system instruction too.
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &p,
		MaxOutputTokens:   int32(req.MaxTokens),
	}
	return contents, cfg
}
