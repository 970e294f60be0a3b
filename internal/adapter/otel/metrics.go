package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "repo-explainer"

// Metrics holds all repo-explainer metric instruments.
// A nil *Metrics records nothing.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	CacheHits     metric.Int64Counter
	FilesFetched  metric.Int64Counter
	FilesDropped  metric.Int64Counter
	RunDuration   metric.Float64Histogram
	ContextBytes  metric.Int64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("repoexplainer.runs.started",
		metric.WithDescription("Number of explanation runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("repoexplainer.runs.completed",
		metric.WithDescription("Number of explanation runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("repoexplainer.runs.failed",
		metric.WithDescription("Number of explanation runs failed, by error kind"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("repoexplainer.cache.hits",
		metric.WithDescription("Number of explanations served from cache"))
	if err != nil {
		return nil, err
	}

	m.FilesFetched, err = meter.Int64Counter("repoexplainer.files.fetched",
		metric.WithDescription("Number of repository files fetched"))
	if err != nil {
		return nil, err
	}

	m.FilesDropped, err = meter.Int64Counter("repoexplainer.files.dropped",
		metric.WithDescription("Number of fetched files dropped by the context budget"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("repoexplainer.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ContextBytes, err = meter.Int64Histogram("repoexplainer.context.bytes",
		metric.WithDescription("Size of the context document sent to the model"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RunStarted records the start of a run.
func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsStarted.Add(ctx, 1)
}

// RunFinished records a run outcome. kind is empty on success.
func (m *Metrics) RunFinished(ctx context.Context, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		m.RunsCompleted.Add(ctx, 1)
	} else {
		m.RunsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", kind)))
	}
	m.RunDuration.Record(ctx, elapsed.Seconds())
}

// CacheHit records an explanation served from cache.
func (m *Metrics) CacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// Fetched records the files fetched and dropped and the context size of a run.
func (m *Metrics) Fetched(ctx context.Context, files, dropped, contextBytes int) {
	if m == nil {
		return
	}
	m.FilesFetched.Add(ctx, int64(files))
	m.FilesDropped.Add(ctx, int64(dropped))
	m.ContextBytes.Record(ctx, int64(contextBytes))
}
