// Command leadflow-api serves the HTTP API that queues workflow runs, emails and scraping jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/dukex/leadflow/pkg/workers"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "leadflow-api"
)

func main() {
	command := &cli.Command{
		Name:                  "leadflow-api",
		Usage:                 "Queue workflow runs and steer background jobs over HTTP",
		EnableShellCompletion: true,
		Flags: append(append(cmd.CommonFlags(), cmd.EventBusFlags()...),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("api").Error("API exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Leadflow API")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	redisClient, err := cmd.NewRedisClient(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	broker := queue.NewRedisBroker(redisClient)
	defer func() {
		if err := broker.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close broker", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	feed := web.NewExecutionFeed(web.DefaultFeedSize)
	if err := feed.Register(eventBus); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to execution events: %w", err)
	}

	dispatcher := workers.NewDispatcher(broker, store, logger)

	return NewAPI(logger, store, dispatcher).WithExecutionFeed(feed).Start(ctx, command.Int("port"))
}
