package telemetry

import (
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config is read from the environment. Tracing is opt-in; logging and in-memory metrics are always
// available.
type Config struct {
	// TracingEnabled exports spans to an OTLP collector.
	TracingEnabled bool `env:"OTEL_ENABLED" envDefault:"false"`

	// Endpoint of the OTLP gRPC collector.
	Endpoint string `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`

	// Fraction of root spans sampled, between 0 and 1.
	TraceSampleRate float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"1.0"`

	LogLevel  string `env:"OTEL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"OTEL_LOG_FORMAT" envDefault:"json"` // "json" or "pretty"

	// MetricsEnabled installs an in-memory go-metrics sink as the global sink.
	MetricsEnabled bool `env:"OTEL_METRICS_ENABLED" envDefault:"true"`

	// Width of one aggregation interval of the metrics sink, and how long intervals are kept.
	MetricsInterval  time.Duration `env:"OTEL_METRICS_INTERVAL" envDefault:"10s"`
	MetricsRetention time.Duration `env:"OTEL_METRICS_RETENTION" envDefault:"1m"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if ParseLogFormat(cfg.LogFormat) == LogFormatUndefined {
		return eris.Errorf("invalid log format %q (must be 'json' or 'pretty')", cfg.LogFormat)
	}
	if cfg.TracingEnabled && cfg.Endpoint == "" {
		return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
	}
	if cfg.TraceSampleRate < 0 || cfg.TraceSampleRate > 1 {
		return eris.Errorf("trace sample rate %v outside [0, 1]", cfg.TraceSampleRate)
	}
	if cfg.MetricsEnabled && (cfg.MetricsInterval <= 0 || cfg.MetricsRetention < cfg.MetricsInterval) {
		return eris.Errorf("metrics retention %v must cover at least one interval of %v",
			cfg.MetricsRetention, cfg.MetricsInterval)
	}
	return nil
}

func (cfg *Config) applyToOptions(opt *Options) {
	opt.TracingEnabled = cfg.TracingEnabled
	opt.Endpoint = cfg.Endpoint
	opt.TraceSampleRate = cfg.TraceSampleRate
	opt.LogLevel = cfg.LogLevel
	opt.LogFormat = ParseLogFormat(cfg.LogFormat)
	opt.MetricsEnabled = cfg.MetricsEnabled
	opt.MetricsInterval = cfg.MetricsInterval
	opt.MetricsRetention = cfg.MetricsRetention
}

// Options are merged over the environment config. Only non-zero fields override it, so booleans
// can only be set through the environment.
type Options struct {
	ServiceName string // Required, prefixes every logger component and metric name

	TracingEnabled  bool
	Endpoint        string
	TraceSampleRate float64

	LogLevel  string
	LogFormat LogFormat
	LogWriter io.Writer // Defaults to stdout

	MetricsEnabled   bool
	MetricsInterval  time.Duration
	MetricsRetention time.Duration
}

func (opt *Options) apply(newOpt Options) {
	if newOpt.ServiceName != "" {
		opt.ServiceName = newOpt.ServiceName
	}
	if newOpt.Endpoint != "" {
		opt.Endpoint = newOpt.Endpoint
	}
	if newOpt.TraceSampleRate != 0 {
		opt.TraceSampleRate = newOpt.TraceSampleRate
	}
	if newOpt.LogLevel != "" {
		opt.LogLevel = newOpt.LogLevel
	}
	if newOpt.LogFormat != LogFormatUndefined {
		opt.LogFormat = newOpt.LogFormat
	}
	if newOpt.LogWriter != nil {
		opt.LogWriter = newOpt.LogWriter
	}
	if newOpt.MetricsInterval != 0 {
		opt.MetricsInterval = newOpt.MetricsInterval
	}
	if newOpt.MetricsRetention != 0 {
		opt.MetricsRetention = newOpt.MetricsRetention
	}
}

func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	if _, err := parseLevel(opt.LogLevel); err != nil {
		return err
	}
	if opt.LogFormat == LogFormatUndefined {
		return eris.New("log format must be specified")
	}
	if opt.TracingEnabled && opt.Endpoint == "" {
		return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
	}
	if opt.TraceSampleRate < 0 || opt.TraceSampleRate > 1 {
		return eris.Errorf("trace sample rate %v outside [0, 1]", opt.TraceSampleRate)
	}
	return nil
}

func parseLevel(s string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return level, eris.Errorf("invalid log level %q (must be 'debug', 'info', 'warn' or 'error')", s)
	}
	return level, nil
}

type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota
	LogFormatJSON                // One JSON object per line
	LogFormatPretty              // zerolog console writer
)

var logFormatNames = map[LogFormat]string{ //nolint:gochecknoglobals // lookup table
	LogFormatJSON:   "json",
	LogFormatPretty: "pretty",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return "undefined"
}

// ParseLogFormat is case-insensitive and returns LogFormatUndefined for unknown names.
func ParseLogFormat(s string) LogFormat {
	for f, name := range logFormatNames {
		if strings.EqualFold(s, name) {
			return f
		}
	}
	return LogFormatUndefined
}
