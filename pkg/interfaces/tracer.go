package interfaces

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Tracer represents a tracing system for observability
type Tracer interface {
	// StartSpan starts a new span and returns a new context containing the span
	StartSpan(ctx context.Context, name string, attributes map[string]string) (context.Context, trace.Span)

	// EndSpan ends the span, recording err when it is non-nil
	EndSpan(span trace.Span, err error)
}
