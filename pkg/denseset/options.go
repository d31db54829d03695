package denseset

import (
	"github.com/argus-labs/denseset/pkg/event"
	"github.com/rs/zerolog"
)

type options struct {
	logger    zerolog.Logger
	events    *event.Manager
	namespace string
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEvents publishes an observation to m for every committed insertion and removal.
func WithEvents(m *event.Manager) Option {
	return func(o *options) {
		o.events = m
	}
}

// WithNamespace overrides the storage namespace. Stores sharing a buffer must use distinct
// namespaces unless they are meant to share state.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

func newOptions(namespace string, opts []Option) options {
	o := options{
		logger:    zerolog.Nop(),
		namespace: namespace,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
