package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BaoNguyen09/repo-explainer/internal/adapter/ws"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

const healthCheckTimeout = 3 * time.Second

// Explainer runs explanation pipelines.
type Explainer interface {
	Explain(ctx context.Context, q explanation.Query) (*explanation.Result, error)
	Stream(ctx context.Context, q explanation.Query) <-chan explanation.Event
	Evict(ctx context.Context, q explanation.Query) error
	Provider() string
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	Explainer    Explainer
	WS           *ws.Handler
	CacheBackend string
	Version      string
	Checks       map[string]HealthCheck
}

// Root returns the welcome text.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Welcome to Repo Explainer!")
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	Provider      string            `json:"provider"`
	Cache         string            `json:"cache"`
	ActiveStreams int64             `json:"active_streams"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Health reports the configured provider and cache backend, and runs the
// dependency checks. Any failing check turns the status to degraded.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  h.Version,
		Provider: h.Explainer.Provider(),
		Cache:    h.CacheBackend,
	}
	if h.WS != nil {
		resp.ActiveStreams = h.WS.ActiveStreams()
	}

	status := http.StatusOK
	if len(h.Checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		resp.Checks = make(map[string]string, len(h.Checks))
		for name, check := range h.Checks {
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// ExplainPath handles GET /{owner}/{repo}?ref=&instructions=.
func (h *Handlers) ExplainPath(w http.ResponseWriter, r *http.Request) {
	q := explanation.Query{
		Owner:        chi.URLParam(r, "owner"),
		Repo:         chi.URLParam(r, "repo"),
		Ref:          r.URL.Query().Get("ref"),
		Instructions: r.URL.Query().Get("instructions"),
	}
	h.explain(w, r, q)
}

// ExplainJSON handles POST /api/v1/explain.
func (h *Handlers) ExplainJSON(w http.ResponseWriter, r *http.Request) {
	q, ok := readJSON[explanation.Query](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	h.explain(w, r, q)
}

func (h *Handlers) explain(w http.ResponseWriter, r *http.Request, q explanation.Query) {
	res, err := h.Explainer.Explain(r.Context(), q)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StreamSSE handles GET /api/v1/explain/stream as Server-Sent Events. Each
// event is named after its type and carries the same payload as the
// WebSocket transport.
func (h *Handlers) StreamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	q := explanation.QueryFrom(r.URL.Query().Get)
	for ev := range h.Explainer.Stream(r.Context(), q) {
		if err := writeSSE(w, ev); err != nil {
			slog.Debug("sse write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev explanation.Event) error {
	msg, err := ws.Encode(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Payload)
	return err
}

// StreamWS handles GET /api/v1/explain/ws.
func (h *Handlers) StreamWS(w http.ResponseWriter, r *http.Request) {
	if h.WS == nil {
		writeError(w, http.StatusNotFound, "websocket streaming disabled")
		return
	}
	h.WS.ServeHTTP(w, r)
}

// Evict handles DELETE /api/v1/explanations. The query names the cached
// explanation the same way an explain request would.
func (h *Handlers) Evict(w http.ResponseWriter, r *http.Request) {
	q := explanation.QueryFrom(r.URL.Query().Get)
	if q.Empty() && r.ContentLength > 0 {
		body, ok := readJSON[explanation.Query](w, r, maxRequestBodySize)
		if !ok {
			return
		}
		q = body
	}
	if err := h.Explainer.Evict(r.Context(), q); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

