package httpx

import (
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// AppConfig tunes the fiber app.
type AppConfig struct {
	Name         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
	Logger       log.Logger
	Tracer       trace.Tracer
	Metrics      *metrics.Factory
}

// NewApp returns a fiber app with corebank error handling and the standard
// middleware chain installed.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(
		WithTracking(cfg.Logger, cfg.Tracer, cfg.Metrics),
		WithHTTPLogging(),
		WithRecover(),
	)

	return app
}
