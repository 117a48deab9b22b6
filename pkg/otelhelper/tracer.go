// Package otelhelper provides distributed tracing for workflow runs and queue jobs.
package otelhelper

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	WorkflowIDKey  = "leadflow.workflow.id"
	BusinessIDKey  = "leadflow.business.id"
	ExecutionIDKey = "leadflow.execution.id"
	NodeIDKey      = "leadflow.node.id"
	NodeTypeKey    = "leadflow.node.type"
	QueueKey       = "leadflow.queue"
	JobIDKey       = "leadflow.job.id"
	WorkerIDKey    = "leadflow.worker.id"
)

// ShutdownFunc flushes buffered spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// NewTracer installs a global provider exporting over OTLP/HTTP, configured by the standard
// OTEL_EXPORTER_OTLP_* variables, and returns a tracer named after serviceName.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, ShutdownFunc, error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceNamespace("leadflow"),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Tracer(serviceName), provider.Shutdown, nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Noop returns a tracer that records nothing, for tests and disabled tracing.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("leadflow")
}
