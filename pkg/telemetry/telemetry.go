// Package telemetry builds the logger, tracer and metrics sink shared by a process.
package telemetry

import (
	"context"
	"strings"

	"github.com/armon/go-metrics"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.InmemSink // nil when metrics are disabled

	serviceName string
	shutdown    func(context.Context) error
}

// New loads the telemetry config from the environment and merges opts over it.
func New(opts Options) (*Telemetry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var options Options
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid telemetry options")
	}

	tracer, shutdown, err := newTracer(context.Background(), options)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{
		Logger:      newLogger(options),
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    shutdown,
	}
	if options.MetricsEnabled {
		if t.Metrics, err = newMetrics(options); err != nil {
			return nil, eris.Wrap(err, "failed to set up metrics")
		}
	}
	return t, nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// GetLogger returns a logger tagged with component.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace is GetLogger plus the ids of the span recording in ctx, if any.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	logger := t.GetLogger(component)
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}
	sc := span.SpanContext()
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// Counters sums every counter of the retained intervals whose name starts with prefix. Names are
// reported without the service name and labels, e.g. "denseset.added".
func (t *Telemetry) Counters(prefix string) map[string]float64 {
	sums := make(map[string]float64)
	if t.Metrics == nil {
		return sums
	}
	for _, interval := range t.Metrics.Data() {
		interval.RLock()
		for _, c := range interval.Counters {
			name := strings.TrimPrefix(c.Name, t.serviceName+".")
			if strings.HasPrefix(name, prefix) {
				sums[name] += c.Sum
			}
		}
		interval.RUnlock()
	}
	return sums
}
