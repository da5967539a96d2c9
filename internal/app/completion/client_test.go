package completion_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"github.com/PabloGalante/farum-gateway/internal/adapters/llm"
	"github.com/PabloGalante/farum-gateway/internal/app/completion"
	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

var testConfig = completion.Config{
	DefaultModel:       "gemini-test",
	DefaultTemperature: 0.7,
	DefaultMaxTokens:   1024,
	MaxTokensCeiling:   4096,
	Timeout:            time.Second,
}

type fakeLLM struct {
	fragments []string
	failAt    int // index of the fragment replaced by err, -1 for none
	err       error
	block     bool
	last      domain.GenerationRequest
	calls     int
}

func (f *fakeLLM) GenerateReply(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Generation{Content: strings.Join(f.fragments, ""), TokensUsed: 42}, nil
}

func (f *fakeLLM) StreamReply(ctx context.Context, req domain.GenerationRequest) iter.Seq2[string, error] {
	f.calls++
	f.last = req
	return func(yield func(string, error) bool) {
		for i, fragment := range f.fragments {
			if i == f.failAt {
				yield("", f.err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

var prompt = domain.CompiledPrompt{SystemPrompt: "system", UserPrompt: "Who am I?"}

func TestCompleteAppliesDefaultsAndClamp(t *testing.T) {
	f := &fakeLLM{fragments: []string{"hi"}, failAt: -1}
	c := completion.NewClient(f, testConfig, nil)

	res, err := c.Complete(context.Background(), prompt, completion.Options{MaxTokens: 100000})
	require.NoError(t, err)
	require.Equal(t, 4096, f.last.MaxTokens)
	require.Equal(t, "gemini-test", f.last.Model)
	require.Equal(t, float32(0.7), f.last.Temperature)
	require.Equal(t, "hi", res.Content)
	require.Equal(t, 42, res.TokensUsed)
	require.Equal(t, "gemini-test", res.Model)
	require.Equal(t, completion.FinishStop, res.FinishReason)
	require.False(t, res.Estimated)

	temp := float32(0.1)
	_, err = c.Complete(context.Background(), prompt, completion.Options{Model: "other", Temperature: &temp})
	require.NoError(t, err)
	require.Equal(t, 1024, f.last.MaxTokens)
	require.Equal(t, "other", f.last.Model)
	require.Equal(t, temp, f.last.Temperature)
}

func TestCompleteTimeoutIsRetryable(t *testing.T) {
	cfg := testConfig
	cfg.Timeout = 20 * time.Millisecond
	c := completion.NewClient(&fakeLLM{block: true, failAt: -1}, cfg, nil)

	_, err := c.Complete(context.Background(), prompt, completion.Options{})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeProviderTimeout, appErr.Code)
	require.True(t, appErr.Retryable)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		err       error
		code      apperrors.Code
		retryable bool
	}{
		{"auth", genai.APIError{Code: 401, Message: "bad key"}, apperrors.CodeProviderAuth, false},
		{"rate limit", genai.APIError{Code: 429}, apperrors.CodeProviderRateLimit, true},
		{"outage", errors.Join(errors.New("wrapped"), genai.APIError{Code: 503}), apperrors.CodeProviderUnavailable, true},
		{"pointer", &genai.APIError{Code: 500}, apperrors.CodeProviderUnavailable, true},
		{"deadline", context.DeadlineExceeded, apperrors.CodeProviderTimeout, true},
		{"other", errors.New("boom"), apperrors.CodeProviderError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr, ok := apperrors.As(completion.Classify(ctx, tc.err))
			require.True(t, ok)
			require.Equal(t, tc.code, appErr.Code)
			require.Equal(t, tc.retryable, appErr.Retryable)
			require.Equal(t, tc.err, appErr.Cause)
		})
	}
}

func TestStreamConcatenationEqualsBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := completion.NewClient(llm.NewMockLLM(), testConfig, nil)
	blocking, err := c.Complete(context.Background(), prompt, completion.Options{})
	require.NoError(t, err)

	var fragments []string
	streamed, err := c.Stream(context.Background(), prompt, completion.Options{}, func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 1)
	require.Equal(t, blocking.Content, strings.Join(fragments, ""))
	require.Equal(t, blocking.Content, streamed.Content)
	require.True(t, streamed.Estimated)
	require.Positive(t, streamed.TokensUsed)
	require.Equal(t, completion.FinishStop, streamed.FinishReason)
}

func TestStreamEmitFailureReturnsPartial(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeLLM{fragments: []string{"one ", "two ", "three"}, failAt: -1}
	c := completion.NewClient(f, testConfig, completion.RatioEstimator{})

	var emitted int
	res, err := c.Stream(context.Background(), prompt, completion.Options{}, func(string) error {
		emitted++
		if emitted == 2 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.ErrorContains(t, err, "broken pipe")
	require.NotNil(t, res)
	require.Equal(t, "one ", res.Content)
	require.Equal(t, completion.FinishCancelled, res.FinishReason)
	require.True(t, res.Estimated)
	require.Positive(t, res.TokensUsed)
}

func TestStreamCancelStopsEmission(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeLLM{fragments: []string{"a ", "b ", "c"}, failAt: -1}
	c := completion.NewClient(f, testConfig, nil)

	var emitted []string
	res, err := c.Stream(ctx, prompt, completion.Options{}, func(s string) error {
		emitted = append(emitted, s)
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"a "}, emitted)
	require.Equal(t, "a ", res.Content)
	require.Equal(t, completion.FinishCancelled, res.FinishReason)
}

func TestStreamProviderErrorMidway(t *testing.T) {
	f := &fakeLLM{fragments: []string{"partial ", "never"}, failAt: 1, err: genai.APIError{Code: 503}}
	c := completion.NewClient(f, testConfig, nil)

	res, err := c.Stream(context.Background(), prompt, completion.Options{}, func(string) error { return nil })
	require.Equal(t, apperrors.CodeProviderUnavailable, apperrors.CodeOf(err))
	require.Equal(t, "partial ", res.Content)
	require.Equal(t, completion.FinishError, res.FinishReason)
}

func TestRatioEstimator(t *testing.T) {
	require.Zero(t, completion.RatioEstimator{}.EstimateTokens(""))
	require.Equal(t, 1, completion.RatioEstimator{}.EstimateTokens("abc"))
	require.Equal(t, 2, completion.RatioEstimator{}.EstimateTokens("abcdefgh"))
	require.Equal(t, 3, completion.RatioEstimator{CharsPerToken: 2}.EstimateTokens("héllo"))
}
