// Package runtime keeps panics in background goroutines from taking the
// process down while still leaving a trace of them in logs and spans.
package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecoverAndLog recovers a panic, logs it with its stack and records it on the
// span in ctx. It must be called directly by a deferred statement.
//
//	defer runtime.RecoverAndLog(ctx, logger, "fraud", "dispatch")
func RecoverAndLog(ctx context.Context, logger log.Logger, component, name string) {
	if r := recover(); r != nil {
		HandlePanicValue(ctx, logger, r, component, name)
	}
}

// HandlePanicValue reports a panic value that something else already recovered,
// such as fiber's recover middleware.
func HandlePanicValue(ctx context.Context, logger log.Logger, value any, component, name string) {
	stack := debug.Stack()

	if ctx == nil {
		ctx = context.Background()
	}

	if logger != nil {
		logger.Log(ctx, log.LevelError, "panic recovered",
			log.String("component", component),
			log.String("source", name),
			log.String("panic", fmt.Sprint(value)),
			log.String("stack_trace", string(stack)),
		)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent("panic.recovered", trace.WithAttributes(
		attribute.String("panic.component", component),
		attribute.String("panic.source", name),
		attribute.String("panic.value", fmt.Sprint(value)),
	))
	span.SetStatus(codes.Error, "panic recovered in "+name)
}

// SafeGo runs fn in a new goroutine whose panics are recovered and reported.
func SafeGo(ctx context.Context, logger log.Logger, component, name string, fn func(ctx context.Context)) {
	go func() {
		defer RecoverAndLog(ctx, logger, component, name)

		fn(ctx)
	}()
}
