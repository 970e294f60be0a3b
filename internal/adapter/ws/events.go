package ws

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

// Message is the envelope for all WebSocket messages. Type is one of
// status, result, or error.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StatusPayload reports a stage transition.
type StatusPayload struct {
	Stage     explanation.Stage `json:"stage"`
	Timestamp time.Time         `json:"timestamp"`
}

// ErrorPayload reports a failed run.
type ErrorPayload struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds
}

// Encode converts a pipeline event into its wire message. The SSE
// transport uses the same type and payload.
func Encode(ev explanation.Event) (Message, error) {
	var payload any
	switch ev.Type {
	case explanation.EventStatus:
		payload = StatusPayload{Stage: ev.Stage, Timestamp: ev.Timestamp}
	case explanation.EventResult:
		payload = ev.Result
	case explanation.EventError:
		p := ErrorPayload{Detail: ev.Detail}
		if p.Detail == "" {
			p.Detail = domain.UserMessage(ev.Err)
		}
		if d, ok := domain.RetryAfter(ev.Err); ok {
			p.RetryAfter = int(math.Ceil(d.Seconds()))
		}
		payload = p
	default:
		return Message{}, fmt.Errorf("unknown event type %q", ev.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return Message{Type: string(ev.Type), Payload: data}, nil
}
