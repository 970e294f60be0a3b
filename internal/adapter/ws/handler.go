// Package ws streams explanation progress over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

const (
	queryReadTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	maxQueryMessage  = 16 << 10
)

// Streamer starts explanation runs.
type Streamer interface {
	Stream(ctx context.Context, q explanation.Query) <-chan explanation.Event
}

// Handler upgrades requests to WebSocket and streams one run per connection.
// The query is taken from the URL parameters, or from the first text message
// when the URL names no repository.
type Handler struct {
	streamer Streamer
	accept   websocket.AcceptOptions
	active   atomic.Int64
}

// NewHandler creates a Handler. origins are the allowed browser origins;
// an empty list or "*" accepts any origin.
func NewHandler(streamer Streamer, origins []string) *Handler {
	h := &Handler{streamer: streamer}
	for _, o := range origins {
		if o == "*" {
			h.accept = websocket.AcceptOptions{InsecureSkipVerify: true}
			return h
		}
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		h.accept.OriginPatterns = append(h.accept.OriginPatterns, o)
	}
	if len(h.accept.OriginPatterns) == 0 {
		h.accept.InsecureSkipVerify = true
	}
	return h
}

// ActiveStreams returns the number of connections currently streaming.
func (h *Handler) ActiveStreams() int64 { return h.active.Load() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c.SetReadLimit(maxQueryMessage)
	defer c.CloseNow()

	h.active.Add(1)
	defer h.active.Add(-1)

	ctx := r.Context()
	q := explanation.QueryFrom(r.URL.Query().Get)
	if q.Empty() {
		q, err = readQuery(ctx, c)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				h.send(ctx, c, explanation.Event{Type: explanation.EventError, Err: err, Detail: domain.UserMessage(err)})
				_ = c.Close(websocket.StatusPolicyViolation, "invalid query")
			}
			slog.Debug("websocket query read failed", "error", err)
			return
		}
	}

	// CloseRead cancels ctx when the client goes away.
	ctx = c.CloseRead(ctx)
	for ev := range h.streamer.Stream(ctx, q) {
		if err := h.send(ctx, c, ev); err != nil {
			slog.Debug("websocket write failed", "error", err)
			return
		}
		if ev.Terminal() {
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
	slog.Info("websocket stream ended without a result", "remote", r.RemoteAddr)
}

func (h *Handler) send(ctx context.Context, c *websocket.Conn, ev explanation.Event) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, data)
}

func readQuery(ctx context.Context, c *websocket.Conn) (explanation.Query, error) {
	rctx, cancel := context.WithTimeout(ctx, queryReadTimeout)
	defer cancel()

	typ, data, err := c.Read(rctx)
	if err != nil {
		return explanation.Query{}, fmt.Errorf("read query: %w", err)
	}
	if typ != websocket.MessageText {
		return explanation.Query{}, fmt.Errorf("%w: query must be a JSON text message", domain.ErrInvalidInput)
	}
	var q explanation.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return explanation.Query{}, fmt.Errorf("%w: query is not valid JSON", domain.ErrInvalidInput)
	}
	return q, nil
}
