// Command leadflow-scheduler fires due triggers and queues one workflow run per matching business.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/scheduler"
	"github.com/dukex/leadflow/pkg/workers"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:  "leadflow-scheduler",
		Usage: "Fire schedule, new-business and delay triggers",
		Flags: append(cmd.CommonFlags(),
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due triggers are read",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("SCHEDULER_POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Businesses per firing for triggers without their own batch size",
				Value:   models.DefaultTriggerBatchSize,
				Sources: cli.EnvVars("SCHEDULER_BATCH_SIZE"),
			},
		),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("scheduler").Error("Scheduler exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("scheduler")
	logger.InfoContext(ctx, "Initializing Leadflow scheduler")

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

	s := scheduler.New(store, workers.NewDispatcher(broker, store, logger), logger)
	s.PollInterval = command.Duration("poll-interval")
	s.BatchSize = command.Int("batch-size")

	return s.Run(ctx)
}
