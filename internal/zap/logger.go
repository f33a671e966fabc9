package zap

import (
	"context"
	"strings"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements log.Logger on top of a *zap.Logger.
type Logger struct {
	logger *zap.Logger
}

var _ log.Logger = (*Logger)(nil)

// Wrap adapts an existing zap logger, mostly useful with zaptest/observer.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{logger: l}
}

func (l *Logger) must() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}

	return l.logger
}

// Log writes the entry at level. When ctx carries a sampled span the trace and
// span identifiers are appended so log lines correlate with saga traces.
func (l *Logger) Log(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	zf := toZapFields(fields)

	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			zf = append(zf,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	msg = sanitize(msg)

	switch level {
	case log.LevelDebug:
		l.must().Debug(msg, zf...)
	case log.LevelWarn:
		l.must().Warn(msg, zf...)
	case log.LevelError:
		l.must().Error(msg, zf...)
	default:
		l.must().Info(msg, zf...)
	}
}

// With returns a child logger carrying fields on every entry.
//
//nolint:ireturn
func (l *Logger) With(fields ...log.Field) log.Logger {
	return &Logger{logger: l.must().With(toZapFields(fields)...)}
}

// WithGroup nests subsequent fields under name.
//
//nolint:ireturn
func (l *Logger) WithGroup(name string) log.Logger {
	return &Logger{logger: l.must().With(zap.Namespace(name))}
}

// Enabled reports whether an entry at level would be written.
func (l *Logger) Enabled(level log.Level) bool {
	return l.must().Core().Enabled(toZapLevel(level))
}

// Sync flushes buffered entries unless ctx ends first.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		done <- l.must().Sync()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Raw exposes the underlying zap logger.
func (l *Logger) Raw() *zap.Logger {
	return l.must()
}

func toZapLevel(level log.Level) zapcore.Level {
	switch level {
	case log.LevelDebug:
		return zapcore.DebugLevel
	case log.LevelWarn:
		return zapcore.WarnLevel
	case log.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZapFields(fields []log.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))

	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			if f.Key == "error" {
				out = append(out, zap.Error(v))
				continue
			}

			out = append(out, zap.NamedError(f.Key, v))
		case string:
			out = append(out, zap.String(f.Key, sanitize(v)))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}

	return out
}

// controlChars escapes characters that would let a caller forge extra log
// lines through the console encoder (CWE-117).
var controlChars = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitize(s string) string {
	return controlChars.Replace(s)
}
