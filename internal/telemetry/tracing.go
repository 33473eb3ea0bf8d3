package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerName is the instrumentation scope used for execgraph spans.
const TracerName = "github.com/roach88/execgraph"

// TracingConfig holds the OTLP exporter settings.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // host:port; the exporter adds the path
	SampleRatio    float64
}

// DefaultTracingConfig returns a config that samples every run and exports
// to a local collector.
func DefaultTracingConfig(serviceName string) TracingConfig {
	return TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   "127.0.0.1:4318",
		SampleRatio:    1.0,
	}
}

// SetupTracing installs a global tracer provider exporting over OTLP/HTTP.
// The returned function flushes and shuts the provider down.
func SetupTracing(ctx context.Context, cfg TracingConfig, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("setting up tracing",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
	)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// ShutdownTracing calls shutdown with a bounded timeout and logs the outcome.
func ShutdownTracing(shutdown func(context.Context) error, logger *slog.Logger) error {
	if shutdown == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("tracing shutdown failed", "error", err)
		return err
	}
	logger.Debug("tracing shut down")
	return nil
}
