package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/BaoNguyen09/repo-explainer/internal/adapter/ws"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

type fakeStreamer struct {
	mu     sync.Mutex
	got    []explanation.Query
	events []explanation.Event
}

func (f *fakeStreamer) Stream(_ context.Context, q explanation.Query) <-chan explanation.Event {
	f.mu.Lock()
	f.got = append(f.got, q)
	f.mu.Unlock()
	ch := make(chan explanation.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (f *fakeStreamer) queries() []explanation.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]explanation.Query(nil), f.got...)
}

func successEvents() []explanation.Event {
	return []explanation.Event{
		{Type: explanation.EventStatus, Stage: explanation.StageValidating},
		{Type: explanation.EventStatus, Stage: explanation.StageFetchingTree},
		{Type: explanation.EventResult, Result: &explanation.Result{Explanation: "# Hi", Repo: "octo/hello"}},
	}
}

func dial(t *testing.T, srv *httptest.Server, rawQuery string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	c, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func readAll(t *testing.T, c *websocket.Conn) []ws.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []ws.Message
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				t.Fatalf("read: %v", err)
			}
			return out
		}
		var m ws.Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad message %q: %v", data, err)
		}
		out = append(out, m)
	}
}

func TestStreamFromURLQuery(t *testing.T) {
	fs := &fakeStreamer{events: successEvents()}
	srv := httptest.NewServer(ws.NewHandler(fs, nil))
	defer srv.Close()

	msgs := readAll(t, dial(t, srv, "owner=octo&repo=hello&instructions=why"))
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	var st ws.StatusPayload
	if err := json.Unmarshal(msgs[1].Payload, &st); err != nil || msgs[1].Type != "status" || st.Stage != explanation.StageFetchingTree {
		t.Errorf("unexpected status message %s %s", msgs[1].Type, msgs[1].Payload)
	}
	var res explanation.Result
	if err := json.Unmarshal(msgs[2].Payload, &res); err != nil || msgs[2].Type != "result" || res.Explanation != "# Hi" {
		t.Errorf("unexpected result message %s %s", msgs[2].Type, msgs[2].Payload)
	}

	q := fs.queries()
	if len(q) != 1 || q[0].Owner != "octo" || q[0].Repo != "hello" || q[0].Instructions != "why" {
		t.Errorf("unexpected queries %+v", q)
	}
}

func TestStreamFromFirstMessage(t *testing.T) {
	fs := &fakeStreamer{events: successEvents()}
	srv := httptest.NewServer(ws.NewHandler(fs, []string{"http://localhost:3000"}))
	defer srv.Close()

	c := dial(t, srv, "")
	if err := c.Write(context.Background(), websocket.MessageText, []byte(`{"query":"octo/hello","ref":"dev"}`)); err != nil {
		t.Fatal(err)
	}
	if msgs := readAll(t, c); len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if q := fs.queries(); len(q) != 1 || q[0].Repository != "octo/hello" || q[0].Ref != "dev" {
		t.Errorf("unexpected queries %+v", q)
	}
}

func TestInvalidFirstMessage(t *testing.T) {
	fs := &fakeStreamer{}
	srv := httptest.NewServer(ws.NewHandler(fs, nil))
	defer srv.Close()

	c := dial(t, srv, "")
	if err := c.Write(context.Background(), websocket.MessageText, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	msgs := readAll(t, c)
	if len(msgs) != 1 || msgs[0].Type != "error" {
		t.Fatalf("expected one error message, got %+v", msgs)
	}
	var p ws.ErrorPayload
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil || !strings.HasPrefix(p.Detail, "Invalid request") {
		t.Errorf("unexpected error payload %s", msgs[0].Payload)
	}
	if len(fs.queries()) != 0 {
		t.Error("invalid query started a run")
	}
}

func TestEncodeErrorCarriesRetryAfter(t *testing.T) {
	err := &domain.RateLimitError{Service: "github", RetryAfter: 1500 * time.Millisecond}
	msg, encErr := ws.Encode(explanation.Event{Type: explanation.EventError, Err: err})
	if encErr != nil {
		t.Fatal(encErr)
	}
	var p ws.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.RetryAfter != 2 {
		t.Errorf("expected retry_after 2, got %d", p.RetryAfter)
	}
	if !strings.HasPrefix(p.Detail, "Rate limit exceeded") {
		t.Errorf("unexpected detail %q", p.Detail)
	}

	if _, err := ws.Encode(explanation.Event{Type: "bogus"}); err == nil {
		t.Error("expected error for unknown event type")
	}
}
