package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultTracer = "portfolio-engine"

type Config struct {
	ServiceName  string
	CollectorURL string // OTLP gRPC endpoint, e.g. "otel-collector:4317"
	Exporter     string // otlp (default) or stdout
	Environment  string
	Version      string
	// SampleRatio is the fraction of new traces kept. Values outside (0, 1)
	// keep everything. Child spans follow their parent's decision.
	SampleRatio float64
	Enabled     bool
}

// Provider owns the tracer provider and the exporter connection. The zero
// value is a disabled provider whose Shutdown is a no-op.
type Provider struct {
	tp   *sdktrace.TracerProvider
	conn *grpc.ClientConn
}

// Init installs a global tracer provider and W3C propagators. When tracing
// is disabled the global no-op provider is left in place.
func Init(ctx context.Context, cfg *Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	p := &Provider{}
	exporter, err := p.exporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// OTEL_RESOURCE_ATTRIBUTES may add to or override these.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		_ = p.closeConn()
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func (p *Provider) exporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		return exp, nil
	case "", "otlp":
		conn, err := grpc.NewClient(cfg.CollectorURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("telemetry: dial collector %s: %w", cfg.CollectorURL, err)
		}
		p.conn = conn
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = p.closeConn()
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}

func (p *Provider) closeConn() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Shutdown flushes pending spans, then closes the collector connection.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.tp != nil {
		err = p.tp.Shutdown(ctx)
	}
	return errors.Join(err, p.closeConn())
}

// StartSpan starts an internal span, e.g. "portfolio.DecideAndExecute".
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(defaultTracer).Start(ctx, name, opts...)
}

func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError records err on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the current trace id, or "" outside a trace. It doubles
// as the correlation id of published events.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
