package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "repo-explainer"

// StartRunSpan starts a span for an explanation run.
func StartRunSpan(ctx context.Context, runID, repo, provider string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "explain",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("repo", repo),
			attribute.String("llm.provider", provider),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage,
		trace.WithAttributes(attribute.String("stage", stage)),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
