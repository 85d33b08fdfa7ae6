package handler

import (
	"database/sql"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/transport"
)

// ServerDeps wires the status server. Redis is optional.
type ServerDeps struct {
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	SQLDB      *sql.DB
	Redis      *redis.Client
	Status     StatusProvider
	Recipients RecipientLookup
	Attempts   AttemptHistory
}

// NewStatusServer builds the read-only HTTP surface served alongside a
// delivery run.
func NewStatusServer(deps ServerDeps) (*fiber.App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.SQLDB == nil {
		return nil, fmt.Errorf("database handle is required")
	}

	app := fiber.New(fiber.Config{
		AppName:               "survey-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(deps.Logger),
	})
	app.Use(recover.New())
	app.Use(deps.Metrics.HTTPMiddleware())

	RegisterHealthRoutes(app, deps.SQLDB, deps.Redis)
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	if err := RegisterStatusRoutes(app, deps.Status, deps.Recipients, deps.Attempts); err != nil {
		return nil, err
	}

	return app, nil
}
