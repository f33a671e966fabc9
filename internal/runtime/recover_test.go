//go:build unit

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	corezap "github.com/Praveen-crypto-tech/core-banking-microservices/internal/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoverAndLogSwallowsPanic(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.ErrorLevel)
	logger := corezap.Wrap(zap.New(core))

	assert.NotPanics(t, func() {
		defer RecoverAndLog(context.Background(), logger, "fraud", "check")
		panic("rule table corrupted")
	})

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "panic recovered", entries[0].Message)
	assert.Equal(t, "rule table corrupted", entries[0].ContextMap()["panic"])
	assert.Equal(t, "fraud", entries[0].ContextMap()["component"])
	assert.NotEmpty(t, entries[0].ContextMap()["stack_trace"])
}

func TestHandlePanicValueMarksSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := provider.Tracer("test").Start(context.Background(), "dispatch")
	HandlePanicValue(ctx, log.NewNop(), "boom", "fraud", "dispatch")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "panic.recovered", ended[0].Events()[0].Name)
}

func TestSafeGoRecovers(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})

	SafeGo(context.Background(), log.NewNop(), "test", "worker", func(context.Context) {
		defer close(done)
		panic("worker exploded")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestHandlePanicValueToleratesNilInputs(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		HandlePanicValue(nil, nil, "boom", "x", "y") //nolint:staticcheck
	})
}
