package cmd

import (
	"context"
	"fmt"

	"github.com/dukex/leadflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const DefaultRedisURL = "redis://localhost:6379/0"

// CommonFlags are shared by every leadflow binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the job queues",
			Value:   DefaultRedisURL,
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// TracingFlags toggle OTLP trace export.
func TracingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// EventBusFlags select the execution event transport.
func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   EventBusGoChannel,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

// NewTracer returns an OTLP tracer when --tracing is set and a no-op tracer otherwise.
// The shutdown func is never nil.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, command *cli.Command, serviceName string) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !command.Bool("tracing") {
		return otelhelper.Noop(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}
