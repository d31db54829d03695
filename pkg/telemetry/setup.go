package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/argus-labs/denseset/pkg/assert"
	"github.com/armon/go-metrics"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newLogger(opts Options) zerolog.Logger {
	level, err := parseLevel(opts.LogLevel)
	assert.That(err == nil, "log level validated before setup: %v", err)

	out := opts.LogWriter
	if out == nil {
		out = os.Stdout
	}
	if opts.LogFormat == LogFormatPretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
}

// newTracer returns a noop tracer unless tracing is enabled, in which case spans are batched to
// the OTLP collector and the provider is installed globally. shutdown flushes pending spans.
func newTracer(ctx context.Context, opts Options) (trace.Tracer, func(context.Context) error, error) {
	if !opts.TracingEnabled {
		return noop.NewTracerProvider().Tracer(opts.ServiceName), func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to build otel resource")
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to create OTLP trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.TraceSampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Tracer(opts.ServiceName), provider.Shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// newMetrics installs an in-memory sink as the global go-metrics sink, so the counters emitted by
// the storage and denseset packages can be read back from it.
func newMetrics(opts Options) (*metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(opts.MetricsInterval, opts.MetricsRetention)

	cfg := metrics.DefaultConfig(opts.ServiceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	if _, err := metrics.NewGlobal(cfg, sink); err != nil {
		return nil, eris.Wrap(err, "failed to install metrics sink")
	}
	return sink, nil
}
