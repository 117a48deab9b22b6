// Command leadflow-worker consumes the workflow, email and scraping queues.
package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/leadflow/pkg/clients/gemini"
	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/workers"
	cli "github.com/urfave/cli/v3"
)

func flags() []cli.Flag {
	flags := slices.Concat(cmd.CommonFlags(), cmd.EventBusFlags(), cmd.TracingFlags())

	return append(flags,
		&cli.StringFlag{
			Name:    "worker-id",
			Usage:   "Identifier reported in execution events; random when empty",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.IntFlag{
			Name:    "workflow-concurrency",
			Usage:   "Concurrent workflow runs",
			Value:   10,
			Sources: cli.EnvVars("WORKFLOW_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "scraping-concurrency",
			Usage:   "Concurrent scraping jobs",
			Value:   5,
			Sources: cli.EnvVars("SCRAPING_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "email-concurrency",
			Usage:   "Concurrent email deliveries",
			Value:   5,
			Sources: cli.EnvVars("EMAIL_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "daily-email-limit",
			Usage:   "Emails a user may send per local day, 0 disables the cap",
			Value:   workers.DefaultDailyEmailLimit,
			Sources: cli.EnvVars("DAILY_EMAIL_LIMIT"),
		},
		&cli.StringFlag{
			Name:    "timezone",
			Usage:   "Time zone of the daily email cap",
			Value:   "Local",
			Sources: cli.EnvVars("TZ"),
		},
		&cli.BoolFlag{
			Name:    "single-flight",
			Usage:   "Hold a Redis lease so one business runs a workflow at most once at a time",
			Sources: cli.EnvVars("SINGLE_FLIGHT"),
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Gemini API key for AI nodes",
			Sources: cli.EnvVars("GEMINI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Usage:   "Model used by AI nodes that do not name one",
			Value:   gemini.DefaultModel,
			Sources: cli.EnvVars("GEMINI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-token",
			Usage:   "WhatsApp Business access token",
			Sources: cli.EnvVars("WHATSAPP_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-phone-number-id",
			Usage:   "WhatsApp Business sender phone number id",
			Sources: cli.EnvVars("WHATSAPP_PHONE_NUMBER_ID"),
		},
		&cli.StringFlag{
			Name:    "scraper-url",
			Usage:   "Base URL of the scraping service",
			Sources: cli.EnvVars("SCRAPER_URL"),
		},
		&cli.StringFlag{
			Name:    "scraper-api-key",
			Usage:   "API key of the scraping service",
			Sources: cli.EnvVars("SCRAPER_API_KEY"),
		},
	)
}

func main() {
	command := &cli.Command{
		Name:                  "leadflow-worker",
		Usage:                 "Execute workflows, deliver emails and run scraping jobs",
		EnableShellCompletion: true,
		Flags:                 flags(),
		Action:                run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("worker").Error("Worker exited", "error", err)
		os.Exit(1)
	}
}
