package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/PabloGalante/farum-gateway/internal/app/router"
	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

var errStreamClosed = errors.New("event stream already terminated")

type fragmentEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

type doneEvent struct {
	Content    string `json:"content"`
	Done       bool   `json:"done"`
	TokensUsed int    `json:"tokensUsed"`
	Model      string `json:"model"`
	SessionID  string `json:"sessionId,omitempty"`
}

type errorEvent struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Done  bool   `json:"done"`
}

// sseWriter frames events as "data: <json>\n\n". Once the terminal event is
// written every later write fails, so a stream ends with exactly one
// done:true event.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    bool
}

func (s *sseWriter) write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) fragment(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errStreamClosed
	}
	return s.write(fragmentEvent{Content: content})
}

// terminate writes the single terminal event. Later calls are no-ops.
func (s *sseWriter) terminate(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	_ = s.write(v)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, adm *router.Admission) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeInternal, "streaming not supported"))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}
	ctx := r.Context()

	res, err := s.router.DispatchStream(ctx, adm, sse.fragment)
	if err != nil {
		log := observability.LoggerFromContext(ctx)
		if ctx.Err() != nil {
			log.Info("client disconnected mid-stream", "error", err)
		} else {
			log.Warn("stream failed", "code", apperrors.CodeOf(err), "error", err)
		}
		msg := "internal server error"
		if appErr, ok := apperrors.As(err); ok {
			msg = appErr.Error()
		}
		sse.terminate(errorEvent{Error: msg, Code: string(apperrors.CodeOf(err)), Done: true})
		return
	}

	sse.terminate(doneEvent{
		Content:    "",
		Done:       true,
		TokensUsed: res.TokensUsed,
		Model:      res.Model,
		SessionID:  string(res.SessionID),
	})
}
