// Package tracking carries request-scoped observability facilities through
// context.Context: the logger, tracer, metrics factory and request id.
package tracking

import (
	"context"
	"strings"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultInstrumentation = "corebank"

type contextKey string

const trackingKey = contextKey("corebank_tracking")

type values struct {
	RequestID string
	Tracer    trace.Tracer
	Logger    log.Logger
	Metrics   *metrics.Factory
}

func from(ctx context.Context) values {
	if ctx == nil {
		return values{}
	}

	v, _ := ctx.Value(trackingKey).(*values)
	if v == nil {
		return values{}
	}

	return *v
}

func with(ctx context.Context, mutate func(*values)) context.Context {
	v := from(ctx)
	mutate(&v)

	return context.WithValue(ctx, trackingKey, &v)
}

// ContextWithLogger returns a copy of ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	return with(ctx, func(v *values) { v.Logger = logger })
}

// ContextWithTracer returns a copy of ctx carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return with(ctx, func(v *values) { v.Tracer = tracer })
}

// ContextWithMetrics returns a copy of ctx carrying factory.
func ContextWithMetrics(ctx context.Context, factory *metrics.Factory) context.Context {
	return with(ctx, func(v *values) { v.Metrics = factory })
}

// ContextWithRequestID returns a copy of ctx carrying the correlation id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, func(v *values) { v.RequestID = requestID })
}

// LoggerFromContext returns the logger in ctx or a no-op logger.
//
//nolint:ireturn
func LoggerFromContext(ctx context.Context) log.Logger {
	if l := from(ctx).Logger; l != nil {
		return l
	}

	return log.NewNop()
}

// NewTrackingFromContext extracts the tracking components from ctx.
//
// Missing components are replaced with working defaults: a no-op logger, the
// global tracer, a fresh request id and a no-op metrics factory.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string, *metrics.Factory) {
	v := from(ctx)

	logger := v.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	tracer := v.Tracer
	if tracer == nil {
		tracer = otel.Tracer(defaultInstrumentation)
	}

	requestID := strings.TrimSpace(v.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	factory := v.Metrics
	if factory == nil {
		factory = metrics.NewNopFactory()
	}

	return logger, tracer, requestID, factory
}

// Detach returns a context that keeps ctx's values but ignores its
// cancellation and deadline. Saga steps that must finish once money has moved
// run on a detached context.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
