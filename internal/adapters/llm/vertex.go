package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

var errEmptyReply = errors.New("genai returned empty text")

type GenAIConfig struct {
	ProjectID string
	Location  string
	// APIKey selects the Gemini API backend instead of Vertex AI.
	APIKey string
	Model  string
}

type GenAIClient struct {
	client    *genai.Client
	modelName string
}

// NewGenAIClient creates an LLMClient backed by Vertex AI (Gemini), or by
// the Gemini API when an API key is configured.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.ProjectID == "" || cfg.Location == "" {
			return nil, fmt.Errorf("project and location are required for the Vertex AI backend")
		}
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAIClient{
		client:    client,
		modelName: modelName,
	}, nil
}

func (g *GenAIClient) model(req domain.GenerationRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.modelName
}

// GenerateReply implements domain.LLMClient.
func (g *GenAIClient) GenerateReply(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	contents, cfg := buildContent(req)
	model := g.model(req)

	res, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai generate content: %w", err)
	}

	// Only the text, never the raw structs.
	text := res.Text()
	if text == "" {
		return nil, errEmptyReply
	}

	gen := &domain.Generation{
		Content: text,
		Model:   model,
	}
	if res.UsageMetadata != nil {
		gen.TokensUsed = int(res.UsageMetadata.TotalTokenCount)
	}
	if len(res.Candidates) > 0 && res.Candidates[0] != nil {
		gen.FinishReason = strings.ToLower(string(res.Candidates[0].FinishReason))
	}
	return gen, nil
}

// StreamReply implements domain.LLMClient. Breaking out of the sequence
// stops the underlying stream.
func (g *GenAIClient) StreamReply(ctx context.Context, req domain.GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, cfg := buildContent(req)
		for res, err := range g.client.Models.GenerateContentStream(ctx, g.model(req), contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("genai stream: %w", err))
				return
			}
			if !yield(res.Text(), nil) {
				return
			}
		}
	}
}
