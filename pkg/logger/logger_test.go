package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// lines decodes every JSON log line written to buf.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestInit_Levels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitWithWriter("portfolio-engine", tt.level, false, &bytes.Buffer{})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestInitWithWriter(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("portfolio-engine", "info", false, &buf)

	Debug().Msg("dropped")
	Info().Str("account_id", "acc-1").Msg("trade executed")
	Error().Msg("ledger rejected trade")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "portfolio-engine", got[0]["service"])
	assert.Equal(t, "acc-1", got[0]["account_id"])
	assert.Equal(t, "info", got[0]["level"])
	assert.Contains(t, got[0], "time")
	assert.Equal(t, "error", got[1]["level"])
}

func TestInit_Pretty(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("portfolioctl", "info", true, &buf)

	Warn().Msg("quote source degraded")
	assert.Contains(t, buf.String(), "quote source degraded")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("portfolio-engine", "info", false, &buf)

	l := WithContext(context.Background())
	l.Info().Msg("no span")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "portfolio.Summary")
	defer span.End()

	l = ForAccount(ctx, "acc-9")
	l.Info().Msg("with span")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), got[1]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), got[1]["span_id"])
	assert.Equal(t, "acc-9", got[1]["account_id"])
}
