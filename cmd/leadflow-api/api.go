package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	dispatcher  web.Dispatcher
	validate    *validator.Validate
	feed        *web.ExecutionFeed
}

func NewAPI(logger *slog.Logger, persistence persistence.Persistence, dispatcher web.Dispatcher) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		dispatcher:  dispatcher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WithExecutionFeed exposes the run events collected by feed.
func (a *API) WithExecutionFeed(feed *web.ExecutionFeed) *API {
	a.feed = feed

	return a
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.dispatcher, a.validate, a.logger).
		WithExecutionFeed(a.feed)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Leadflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		return app.Shutdown()
	}
}
