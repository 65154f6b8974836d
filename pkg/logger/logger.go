// Package logger holds the process-wide zerolog logger.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var Logger zerolog.Logger

func Init(serviceName string, level string, pretty bool) {
	InitWithWriter(serviceName, level, pretty, os.Stdout)
}

// InitWithWriter is Init with an explicit sink, used by the CLI to keep
// stdout clean for command output.
func InitWithWriter(serviceName string, level string, pretty bool, out io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	if pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// WithContext returns the global logger enriched with the trace and span ids
// of the span carried by ctx, if any.
func WithContext(ctx context.Context) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return Logger
	}
	return Logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// ForAccount returns a child logger tagged with the portfolio account id.
func ForAccount(ctx context.Context, accountID string) zerolog.Logger {
	l := WithContext(ctx)
	return l.With().Str("account_id", accountID).Logger()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
