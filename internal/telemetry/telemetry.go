// Package telemetry installs the OpenTelemetry providers for the corebank
// binary and exports traces, metrics and logs over OTLP gRPC when enabled.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilLogger is returned when Config.Logger is nil.
var ErrNilLogger = errors.New("telemetry config logger cannot be nil")

// Config describes the service being instrumented.
type Config struct {
	LibraryName    string
	ServiceName    string
	ServiceVersion string
	DeploymentEnv  string
	Endpoint       string
	Enabled        bool
	Logger         log.Logger
}

// Telemetry holds the installed providers.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Metrics        *metrics.Factory
	Tracer         trace.Tracer

	shutdown func(ctx context.Context) error
}

func (c Config) resource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.DeploymentEnvironmentName(c.DeploymentEnv),
	)
}

// Initialize builds the providers and registers them globally. With
// telemetry disabled the SDK providers are still created, without exporters,
// so spans and instruments work and are simply dropped.
func Initialize(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		return nil, ErrNilLogger
	}

	if cfg.LibraryName == "" {
		cfg.LibraryName = "corebank"
	}

	l := cfg.Logger

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if !cfg.Enabled {
		l.Log(ctx, log.LevelWarn, "telemetry turned off")

		mp := sdkmetric.NewMeterProvider()
		tp := sdktrace.NewTracerProvider()
		lp := sdklog.NewLoggerProvider()

		return build(cfg, mp, tp, lp, func(ctx context.Context) error {
			return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx), lp.Shutdown(ctx))
		})
	}

	l.Log(ctx, log.LevelInfo, "initializing telemetry", log.String("endpoint", cfg.Endpoint))

	res := cfg.resource()

	tExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("can't initialize tracer exporter: %w", err)
	}

	mExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("can't initialize metric exporter: %w", err)
	}

	lExp, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(cfg.Endpoint), otlploggrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("can't initialize logger exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mExp)),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(tExp),
		sdktrace.WithResource(res),
	)
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(lExp)),
	)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	global.SetLoggerProvider(lp)

	// Providers flush and close their own exporters.
	shutdown := func(ctx context.Context) error {
		var errs []error

		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("can't shutdown metric provider: %w", err))
		}

		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("can't shutdown tracer provider: %w", err))
		}

		if err := lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("can't shutdown logger provider: %w", err))
		}

		return errors.Join(errs...)
	}

	t, err := build(cfg, mp, tp, lp, shutdown)
	if err != nil {
		return nil, err
	}

	l.Log(ctx, log.LevelInfo, "telemetry initialized")

	return t, nil
}

func build(cfg Config, mp *sdkmetric.MeterProvider, tp *sdktrace.TracerProvider, lp *sdklog.LoggerProvider,
	shutdown func(context.Context) error,
) (*Telemetry, error) {
	factory, err := metrics.NewFactory(mp.Meter(cfg.LibraryName), cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create metrics factory: %w", err)
	}

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Metrics:        factory,
		Tracer:         tp.Tracer(cfg.LibraryName),
		shutdown:       shutdown,
	}, nil
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}

	return t.shutdown(ctx)
}
