package otel_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfotel "github.com/BaoNguyen09/repo-explainer/internal/adapter/otel"
	"github.com/BaoNguyen09/repo-explainer/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := cfotel.Setup(context.Background(), config.OTEL{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *cfotel.Metrics
	ctx := context.Background()
	m.RunStarted(ctx)
	m.RunFinished(ctx, "", time.Second)
	m.CacheHit(ctx)
	m.Fetched(ctx, 3, 1, 100)
}

func TestMetricsOnNoopProvider(t *testing.T) {
	m, err := cfotel.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.RunStarted(ctx)
	m.RunFinished(ctx, "not found", time.Second)
}

func TestSpans(t *testing.T) {
	ctx, span := cfotel.StartRunSpan(context.Background(), "run-1", "o/r", "anthropic")
	_, stage := cfotel.StartStageSpan(ctx, "fetching_tree")
	cfotel.EndSpan(stage, errors.New("boom"))
	cfotel.EndSpan(span, nil)
}

func TestHTTPMiddleware(t *testing.T) {
	h := cfotel.HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Errorf("got %d", rec.Code)
	}
}
