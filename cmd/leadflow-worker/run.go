package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/notify"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/workers"
	"github.com/dukex/leadflow/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "leadflow-worker"

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	logger := log.WithModule("worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Leadflow worker")

	location, err := time.LoadLocation(command.String("timezone"))
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	tracer, shutdownTracer, err := cmd.NewTracer(ctx, command, serviceName)
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
		}
	}()

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

	clientConfig := cmd.ClientConfig{
		GeminiAPIKey:          command.String("gemini-api-key"),
		GeminiModel:           command.String("gemini-model"),
		WhatsAppToken:         command.String("whatsapp-token"),
		WhatsAppPhoneNumberID: command.String("whatsapp-phone-number-id"),
		ScraperURL:            command.String("scraper-url"),
		ScraperAPIKey:         command.String("scraper-api-key"),
	}
	clients := cmd.NewClients(clientConfig)
	registry := cmd.NewRegistry(logger, store, clients, clientConfig)

	dispatcher := workers.NewDispatcher(broker, store, logger)
	notifier := notify.NewNotifier(store, clients.WhatsAppSender(), logger)
	executor := workflow.NewExecutor(registry, logger, workflow.WithTracer(tracer))

	options := []workers.WorkflowWorkerOption{
		workers.WithEventPublisher(eventBus),
		workers.WithWorkerTracer(tracer),
		workers.WithWorkerID(workerID),
	}

	if command.Bool("single-flight") {
		options = append(options, workers.WithLeaser(queue.NewRedisLeaser(redisClient)))
	}

	emailWorker := workers.NewEmailWorker(broker, store, clients.Email, logger)
	emailWorker.DailyLimit = command.Int("daily-email-limit")
	emailWorker.Location = location

	manager := &Manager{
		Logger:   logger,
		Broker:   broker,
		Failures: workers.NewFailureHandler(notifier, logger),
		Workflow: workers.NewWorkflowWorker(store, executor, dispatcher, notifier, logger, options...),
		Email:    emailWorker,

		WorkflowConcurrency: command.Int("workflow-concurrency"),
		EmailConcurrency:    command.Int("email-concurrency"),
		ScrapingConcurrency: command.Int("scraping-concurrency"),
	}

	if clients.Scraper != nil {
		manager.Scraping = workers.NewScrapingWorker(store, clients.Scraper, notifier, logger)
	} else {
		logger.WarnContext(ctx, "No scraper URL configured, scraping queue is not consumed")
	}

	return manager.Run(ctx)
}
