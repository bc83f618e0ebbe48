package tracing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/foxzi/zapdesk/internal/config"
)

// ServiceName is reported as service.name on every span
const ServiceName = "zapdesk"

// Shutdown flushes pending spans
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Options tweak Setup beyond the config file
type Options struct {
	Version string

	// StdoutWriter receives spans when cfg.Stdout is set. Defaults to os.Stdout.
	StdoutWriter io.Writer
}

// Setup installs the global tracer provider. With tracing disabled it
// returns a no-op shutdown and leaves the global no-op provider in place.
func Setup(ctx context.Context, cfg config.TracingConfig, opts Options, logger *slog.Logger) (Shutdown, error) {
	if !cfg.Enabled {
		logger.Debug("tracing disabled")
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch {
	case cfg.Stdout:
		var so []stdouttrace.Option
		if opts.StdoutWriter != nil {
			so = append(so, stdouttrace.WithWriter(opts.StdoutWriter))
		}
		exporter, err = stdouttrace.New(so...)
		if err != nil {
			return noop, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		logger.Info("using stdout trace exporter")
	case cfg.Endpoint != "":
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return noop, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		logger.Info("using OTLP HTTP trace exporter", "endpoint", cfg.Endpoint)
	default:
		return noop, fmt.Errorf("tracing enabled without endpoint or stdout exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("tracing initialized", "sample_rate", cfg.SampleRate)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

// StartSpan starts a span on the zapdesk tracer
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(ServiceName).Start(ctx, name, trace.WithAttributes(attrs...))
}
