// Package event publishes set membership changes. Observations are queued while an operation runs
// and dispatched to handlers only once the operation's writes are committed.
package event

import (
	"context"
	"sync"

	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Kind is the kind of membership change.
type Kind uint8

const (
	KindAdded   Kind = 0 // A value became a member of a set
	KindRemoved Kind = 1 // A value stopped being a member of a set
)

const kindCount = 2

func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Observation describes one committed change to one set.
type Observation struct {
	Kind      Kind
	Namespace string // Storage namespace of the set, usually its layout name
	Owner     setid.Owner
	SetID     setid.SetID
	Value     string // Canonical text form of the element
}

// Handler is a function called to handle dispatched observations.
type Handler func(context.Context, Observation) error

// defaultChannelCapacity is the default size of the observation channel.
const defaultChannelCapacity = 1024

// initialBufferCapacity is the starting capacity of the overflow buffer.
const initialBufferCapacity = 128

// Manager stores observations enqueued during an operation and dispatches them to the handlers
// registered for their kind.
type Manager struct {
	handlers [kindCount][]Handler
	channel  chan Observation // Collects observations as they are enqueued
	buffer   []Observation    // Overflow buffer for when channel is full
	mu       sync.Mutex       // Guards buffer and handlers
}

// NewManager creates a manager whose channel holds capacity observations before spilling into the
// overflow buffer. A non-positive capacity uses the default.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultChannelCapacity
	}
	return &Manager{
		channel: make(chan Observation, capacity),
		buffer:  make([]Observation, 0, initialBufferCapacity),
	}
}

// RegisterHandler adds fn to the handlers of kind. Handlers run in registration order.
func (m *Manager) RegisterHandler(kind Kind, fn Handler) {
	if int(kind) >= kindCount {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], fn)
}

// Subscribe registers fn for every kind.
func (m *Manager) Subscribe(fn Handler) {
	for kind := range Kind(kindCount) {
		m.RegisterHandler(kind, fn)
	}
}

// Enqueue queues an observation. If the channel is full it is flushed to the buffer first.
func (m *Manager) Enqueue(obs Observation) {
	select {
	case m.channel <- obs:
	default:
		m.flush()
		m.channel <- obs
	}
}

// flush drains the channel into the buffer.
func (m *Manager) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		select {
		case obs := <-m.channel:
			m.buffer = append(m.buffer, obs)
		default:
			return
		}
	}
}

// Pending returns the number of observations waiting to be dispatched.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer) + len(m.channel)
}

// Dispatch calls the handlers of every queued observation in enqueue order and clears the queue.
// Handler errors don't stop the dispatch; they are collected and returned together.
func (m *Manager) Dispatch(ctx context.Context) error {
	m.flush()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, obs := range m.buffer {
		if int(obs.Kind) >= kindCount {
			continue
		}
		for _, handler := range m.handlers[obs.Kind] {
			if err := handler(ctx, obs); err != nil {
				errs = append(errs, err)
			}
		}
	}

	m.buffer = m.buffer[:0]

	if len(errs) > 0 {
		return eris.Errorf("event dispatch encountered %d error(s): %v", len(errs), errs)
	}
	return nil
}

// CommitHook returns a function suitable for storage.WithCommitHook. It dispatches everything
// queued by the committed operation and logs handler failures, since the writes they describe are
// already durable.
func (m *Manager) CommitHook(logger zerolog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if err := m.Dispatch(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch set observations")
		}
	}
}
