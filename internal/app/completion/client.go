// Package completion invokes the language-model provider in blocking or
// streaming mode under a hard timeout and a hard response-token ceiling.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const (
	FinishStop      = "stop"
	FinishCancelled = "cancelled"
	FinishError     = "error"
)

// Options are per-call overrides. Zero values fall back to Config defaults.
type Options struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

type Config struct {
	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
	// MaxTokensCeiling is never exceeded whatever the caller asks for.
	MaxTokensCeiling int
	Timeout          time.Duration
}

// Result is the outcome of one completion. In streaming mode TokensUsed is
// an estimate and Estimated is true.
type Result struct {
	Content      string
	TokensUsed   int
	Model        string
	FinishReason string
	Estimated    bool
}

type Client struct {
	llm       domain.LLMClient
	cfg       Config
	estimator TokenEstimator
}

func NewClient(llm domain.LLMClient, cfg Config, estimator TokenEstimator) *Client {
	if estimator == nil {
		estimator = RatioEstimator{}
	}
	return &Client{llm: llm, cfg: cfg, estimator: estimator}
}

func (c *Client) request(prompt domain.CompiledPrompt, opts Options) domain.GenerationRequest {
	req := domain.GenerationRequest{
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   prompt.UserPrompt,
		Model:        c.cfg.DefaultModel,
		Temperature:  c.cfg.DefaultTemperature,
		MaxTokens:    c.cfg.DefaultMaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if c.cfg.MaxTokensCeiling > 0 && (req.MaxTokens <= 0 || req.MaxTokens > c.cfg.MaxTokensCeiling) {
		req.MaxTokens = c.cfg.MaxTokensCeiling
	}
	return req
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// Complete returns the full provider answer.
func (c *Client) Complete(ctx context.Context, prompt domain.CompiledPrompt, opts Options) (*Result, error) {
	req := c.request(prompt, opts)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	gen, err := c.llm.GenerateReply(ctx, req)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	res := &Result{
		Content:      gen.Content,
		TokensUsed:   gen.TokensUsed,
		Model:        gen.Model,
		FinishReason: gen.FinishReason,
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	if res.FinishReason == "" {
		res.FinishReason = FinishStop
	}
	if res.TokensUsed <= 0 {
		res.TokensUsed = c.estimate(req, res.Content)
		res.Estimated = true
	}

	observability.LoggerFromContext(ctx).Debug("completion finished",
		"model", res.Model,
		"tokens", res.TokensUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Stream pushes content fragments to emit in provider order. The returned
// Result is never nil: after an error or a cancellation it holds the partial
// content emitted so far with an estimated token count.
func (c *Client) Stream(ctx context.Context, prompt domain.CompiledPrompt, opts Options, emit func(string) error) (*Result, error) {
	req := c.request(prompt, opts)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		content []byte
		failure error
	)
	finish := FinishStop

	for fragment, err := range c.llm.StreamReply(ctx, req) {
		if err != nil {
			failure = Classify(ctx, err)
			finish = FinishError
			break
		}
		if ctx.Err() != nil {
			failure = Classify(ctx, ctx.Err())
			finish = FinishCancelled
			break
		}
		if fragment == "" {
			continue
		}
		if err := emit(fragment); err != nil {
			failure = fmt.Errorf("emit fragment: %w", err)
			finish = FinishCancelled
			break
		}
		content = append(content, fragment...)
	}

	if failure == nil && ctx.Err() != nil {
		failure = Classify(ctx, ctx.Err())
		finish = FinishCancelled
	}
	if errors.Is(failure, context.Canceled) {
		finish = FinishCancelled
	}

	res := &Result{
		Content:      string(content),
		Model:        req.Model,
		FinishReason: finish,
		Estimated:    true,
	}
	res.TokensUsed = c.estimate(req, res.Content)

	if failure != nil {
		observability.LoggerFromContext(ctx).Warn("stream ended early",
			"model", res.Model,
			"partial_chars", len(res.Content),
			"error", failure,
		)
	}
	return res, failure
}

func (c *Client) estimate(req domain.GenerationRequest, content string) int {
	return c.estimator.EstimateTokens(req.SystemPrompt) +
		c.estimator.EstimateTokens(req.UserPrompt) +
		c.estimator.EstimateTokens(content)
}

// Classify maps a provider failure onto the provider error codes. ctx is the
// call context, used to tell the client timeout apart from caller
// cancellation.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Retryable(apperrors.CodeProviderTimeout, "The language model did not answer in time", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.CodeProviderError, "The request was cancelled", err)
	}

	switch status := statusCode(err); {
	case status == 401 || status == 403:
		return apperrors.Wrap(apperrors.CodeProviderAuth, "The language model provider rejected our credentials", err)
	case status == 429:
		return apperrors.Retryable(apperrors.CodeProviderRateLimit, "The language model provider is rate limiting requests", err)
	case status >= 500:
		return apperrors.Retryable(apperrors.CodeProviderUnavailable, "The language model provider is temporarily unavailable", err)
	}
	return apperrors.Wrap(apperrors.CodeProviderError, "The language model request failed", err)
}

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}
