package httpadapter_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/PabloGalante/farum-gateway/internal/adapters/http"
	"github.com/PabloGalante/farum-gateway/internal/adapters/llm"
	"github.com/PabloGalante/farum-gateway/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-gateway/internal/app/pipeline"
	"github.com/PabloGalante/farum-gateway/internal/config"
)

type testServer struct {
	handler http.Handler
	token   string
}

func newTestServer(t *testing.T, env map[string]string) *testServer {
	t.Helper()

	t.Setenv("FARUM_JWT_SECRET", "test-secret")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	p, err := pipeline.Build(cfg, memory.NewStore(), llm.NewMockLLM(), nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	token, err := p.DevToken("test-user", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &testServer{
		handler: httpadapter.NewServer(p.Router, p.Sessions, p.Identity, httpadapter.Info{Service: "farum-gateway", Version: "test"}),
		token:   token,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Content    string `json:"content"`
		TokensUsed int    `json:"tokensUsed"`
		Model      string `json:"model"`
		SessionID  string `json:"sessionId"`
		Completed  bool   `json:"completed"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

type sseEvent struct {
	Content    string `json:"content"`
	Done       bool   `json:"done"`
	TokensUsed int    `json:"tokensUsed"`
	Model      string `json:"model"`
	Error      string `json:"error"`
}

func readEvents(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var events []sseEvent
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decode event %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(t, http.MethodGet, "/healthz", "", false)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestDescriptor(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(t, http.MethodGet, "/api/ai", "", false)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Service string   `json:"service"`
		Version string   `json:"version"`
		Domains []string `json:"domains"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Service != "farum-gateway" || strings.Join(got.Domains, ",") != "soul,work,brand,health" {
		t.Fatalf("unexpected descriptor %+v", got)
	}
}

func TestBlockingCompletion(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(t, http.MethodPost, "/api/ai", `{"domain":"soul","prompt":"Who am I?"}`, true)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	if !env.Success || env.Data.Content == "" || env.Data.SessionID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Data.TokensUsed <= 0 {
		t.Fatalf("expected token usage, got %d", env.Data.TokensUsed)
	}
}

func TestCookieCredential(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"domain":"work","prompt":"Plan my day"}`))
	req.AddCookie(&http.Cookie{Name: "farum_session", Value: srv.token})
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestFailureEnvelopes(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := []struct {
		name   string
		body   string
		auth   bool
		status int
		code   string
	}{
		{"no credential", `{"domain":"soul","prompt":"hi"}`, false, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad json", `{"domain":`, true, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown domain", `{"domain":"tarot","prompt":"hi"}`, true, http.StatusBadRequest, "INVALID_DOMAIN"},
		{"blank prompt", `{"domain":"soul","prompt":"   "}`, true, http.StatusBadRequest, "INVALID_PROMPT"},
		{"too long", `{"domain":"soul","prompt":"` + strings.Repeat("a", 4001) + `"}`, true, http.StatusBadRequest, "PROMPT_TOO_LONG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/api/ai", tc.body, tc.auth)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d, body=%s", tc.status, w.Code, w.Body.String())
			}
			env := decode(t, w)
			if env.Success || env.Error.Code != tc.code || env.Error.Message == "" {
				t.Fatalf("unexpected envelope %+v", env)
			}
		})
	}
}

func TestRateLimitedRequestHasRetryAfter(t *testing.T) {
	srv := newTestServer(t, map[string]string{"FARUM_RATE_REQUESTS_PER_MINUTE": "1"})
	body := `{"domain":"brand","prompt":"Write a tagline"}`

	if w := srv.do(t, http.MethodPost, "/api/ai", body, true); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	w := srv.do(t, http.MethodPost, "/api/ai", body, true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	env := decode(t, w)
	if env.Error.Code != "RATE_LIMIT" || !strings.Contains(env.Error.Message, "per minute") {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestStreamMatchesBlocking(t *testing.T) {
	srv := newTestServer(t, nil)
	body := `{"domain":"soul","prompt":"Who am I?"}`

	blocking := decode(t, srv.do(t, http.MethodPost, "/api/ai", body, true))

	w := srv.do(t, http.MethodPost, "/api/ai/stream", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, w.Body.Bytes())
	var (
		sb    strings.Builder
		dones int
	)
	for i, ev := range events {
		if ev.Done {
			dones++
			if i != len(events)-1 {
				t.Fatalf("terminal event at %d of %d", i, len(events))
			}
			if ev.Content != "" || ev.TokensUsed <= 0 || ev.Model == "" || ev.Error != "" {
				t.Fatalf("unexpected terminal event %+v", ev)
			}
			continue
		}
		sb.WriteString(ev.Content)
	}
	if dones != 1 {
		t.Fatalf("expected exactly one done event, got %d", dones)
	}
	if sb.String() != blocking.Data.Content {
		t.Fatalf("stream %q != blocking %q", sb.String(), blocking.Data.Content)
	}
}

func TestStreamOptionOnBlockingEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(t, http.MethodPost, "/api/ai", `{"domain":"health","prompt":"Sleep tips","options":{"stream":true}}`, true)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := readEvents(t, w.Body.Bytes())
	if len(events) < 2 || !events[len(events)-1].Done {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestStreamRejectionUsesJSONEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(t, http.MethodPost, "/api/ai/stream", `{"domain":"soul","prompt":"hi"}`, false)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if env := decode(t, w); env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestCompleteSession(t *testing.T) {
	srv := newTestServer(t, nil)
	first := decode(t, srv.do(t, http.MethodPost, "/api/ai", `{"domain":"soul","prompt":"Who am I?"}`, true))

	w := srv.do(t, http.MethodPost, "/api/ai/sessions/"+first.Data.SessionID+"/complete", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if env := decode(t, w); !env.Data.Completed {
		t.Fatalf("expected completed session, got %+v", env)
	}

	// The next exchange starts a fresh session.
	next := decode(t, srv.do(t, http.MethodPost, "/api/ai", `{"domain":"soul","prompt":"And now?"}`, true))
	if next.Data.SessionID == first.Data.SessionID {
		t.Fatalf("expected a new session after completion")
	}

	if w := srv.do(t, http.MethodPost, "/api/ai/sessions/unknown/complete", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, "/api/ai/sessions/unknown/complete", "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
