package httpadapter

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/farum-gateway/internal/app/conversation"
	"github.com/PabloGalante/farum-gateway/internal/app/router"
	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const (
	sessionCookie = "farum_session"
	maxBodyBytes  = 64 << 10
)

// Info is the static capability descriptor served on GET /api/ai.
type Info struct {
	Service string
	Version string
}

type Server struct {
	router   *router.Router
	sessions *conversation.Service
	identity router.IdentityResolver
	info     Info
}

func NewServer(r *router.Router, sessions *conversation.Service, identity router.IdentityResolver, info Info) http.Handler {
	s := &Server{router: r, sessions: sessions, identity: identity, info: info}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /api/ai → GET: descriptor, POST: blocking (or streamed when options.stream)
	mux.HandleFunc("/api/ai", s.handleAI)

	// /api/ai/stream → POST: event stream
	mux.HandleFunc("/api/ai/stream", s.handleStream)

	// /api/ai/sessions/{id}/complete → POST: mark session completed
	mux.HandleFunc("/api/ai/sessions/", s.handleSessionWithID)

	return chainMiddlewares(mux, withCORS, withLogging, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type aiRequest struct {
	Domain  string            `json:"domain"`
	Prompt  string            `json:"prompt"`
	Context *aiRequestContext `json:"context,omitempty"`
	Options *aiRequestOptions `json:"options,omitempty"`
}

type aiRequestContext struct {
	SessionID string `json:"sessionId,omitempty"`
	Focus     string `json:"focus,omitempty"`
}

type aiRequestOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	Model       string   `json:"model,omitempty"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type completionResponse struct {
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokensUsed"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"sessionId,omitempty"`
}

type descriptorResponse struct {
	Service string   `json:"service"`
	Version string   `json:"version"`
	Domains []string `json:"domains"`
}

type sessionResponse struct {
	SessionID      string    `json:"sessionId"`
	Domain         string    `json:"domain"`
	MessageCount   int       `json:"messageCount"`
	TokensUsed     int       `json:"tokensUsed"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Completed      bool      `json:"completed"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /api/ai
func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleDescriptor(w, r)
	case http.MethodPost:
		s.handleCompletion(w, r, false)
	default:
		methodNotAllowed(w)
	}
}

// /api/ai/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handleCompletion(w, r, true)
}

// /api/ai/sessions/{id}/complete
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/ai/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "complete" {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "not found"))
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handleCompleteSession(w, r, domain.SessionID(parts[0]))
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	domains := s.router.Domains()
	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, string(d))
	}
	writeJSON(w, http.StatusOK, descriptorResponse{
		Service: s.info.Service,
		Version: s.info.Version,
		Domains: names,
	})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request, forceStream bool) {
	var body aiRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid JSON body", err))
		return
	}

	in := router.Inbound{
		Credential: credential(r),
		ClientAddr: clientAddr(r),
		Domain:     body.Domain,
		Prompt:     body.Prompt,
	}
	if body.Context != nil {
		in.Context = domain.RequestContext{
			SessionID: domain.SessionID(body.Context.SessionID),
			Focus:     body.Context.Focus,
		}
	}
	if body.Options != nil {
		in.Options = domain.RequestOptions{
			Temperature: body.Options.Temperature,
			MaxTokens:   body.Options.MaxTokens,
			Stream:      body.Options.Stream,
			Model:       body.Options.Model,
		}
	}
	if forceStream {
		in.Options.Stream = true
	}

	// Every rejection before dispatch uses the JSON envelope, streamed or not.
	adm, err := s.router.Admit(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	if adm.Request.Options.Stream {
		s.serveStream(w, r, adm)
		return
	}

	res, err := s.router.Dispatch(r.Context(), adm)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn("completion failed",
			"code", apperrors.CodeOf(err),
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope{
		Success: true,
		Data: completionResponse{
			Content:    res.Content,
			TokensUsed: res.TokensUsed,
			Model:      res.Model,
			Timestamp:  res.Timestamp,
			SessionID:  string(res.SessionID),
		},
	})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	userID, err := s.identity.Resolve(r.Context(), credential(r))
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := s.sessions.CompleteSession(observability.WithUserID(r.Context(), string(userID)), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope{
		Success: true,
		Data: sessionResponse{
			SessionID:      string(session.ID),
			Domain:         string(session.Domain),
			MessageCount:   session.MessageCount,
			TokensUsed:     session.TokensUsed,
			StartedAt:      session.StartedAt,
			LastActivityAt: session.LastActivityAt,
			Completed:      session.Completed,
		},
	})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// credential reads the session credential from the Authorization header,
// falling back to the session cookie.
func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the failure envelope with the status derived from the
// error code. Uncategorized errors never leak their message.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.New(apperrors.CodeInternal, "internal server error")
	}

	if appErr.Code == apperrors.CodeRateLimit && !appErr.RetryAfter.IsZero() {
		secs := int(math.Ceil(time.Until(appErr.RetryAfter).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}

	msg := appErr.Message
	if msg == "" {
		msg = http.StatusText(appErr.Code.HTTPStatus())
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		msg = "request body too large"
	}

	writeJSON(w, appErr.Code.HTTPStatus(), errorEnvelope{
		Success: false,
		Error:   errorBody{Code: string(appErr.Code), Message: msg},
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "GET, POST")
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
		Error: errorBody{Code: string(apperrors.CodeInvalidRequest), Message: "method not allowed"},
	})
}
