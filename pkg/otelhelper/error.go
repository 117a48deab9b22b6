package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Run outcome attribute keys.
const (
	RunStatusKey      = "leadflow.run.status"
	RunFailuresKey    = "leadflow.run.failures"
	RunSuspensionsKey = "leadflow.run.suspensions"
)

// SetError records err on span and marks it failed. A nil err is ignored.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetRunOutcome annotates a workflow run span with its final status and the number of soft
// node failures and parked branches.
func SetRunOutcome(span trace.Span, status string, failures, suspensions int) {
	span.SetAttributes(
		attribute.String(RunStatusKey, status),
		attribute.Int(RunFailuresKey, failures),
		attribute.Int(RunSuspensionsKey, suspensions),
	)
}
