package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonCriticalSwallowsErrorsAndPanics(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, slog.LevelInfo) })

	require.NotPanics(t, func() {
		NonCritical(context.Background(), "write", func(context.Context) error {
			return errors.New("store down")
		})
		NonCritical(context.Background(), "explode", func(context.Context) error {
			panic("boom")
		})
	})

	out := buf.String()
	require.Contains(t, out, "store down")
	require.Contains(t, out, "boom")
}

func TestNonCriticalDetachesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	NonCritical(ctx, "after-cancel", func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	})
	require.NoError(t, sawErr)
}

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, slog.LevelInfo) })

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "u-1")
	LoggerFromContext(ctx).Info("hello")

	require.Contains(t, buf.String(), `"request_id":"req-1"`)
	require.Contains(t, buf.String(), `"user_id":"u-1"`)
}

func TestSetupTracingNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test-service", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
