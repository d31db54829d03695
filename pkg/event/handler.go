package event

import (
	"context"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Log is an append-only in-memory log of observations.
type Log struct {
	mu      sync.Mutex
	entries []Observation
}

// Handle appends obs to the log. It is a Handler.
func (l *Log) Handle(_ context.Context, obs Observation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, obs)
	return nil
}

// Entries returns a copy of every observation logged so far.
func (l *Log) Entries() []Observation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Observation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// NewLogHandler returns a handler that writes every observation to logger at debug level.
func NewLogHandler(logger zerolog.Logger) Handler {
	return func(_ context.Context, obs Observation) error {
		logger.Debug().
			Str("kind", obs.Kind.String()).
			Str("namespace", obs.Namespace).
			Str("owner", strings.ToLower(obs.Owner.Hex())).
			Str("set", obs.SetID.Hex()).
			Str("value", obs.Value).
			Msg("set changed")
		return nil
	}
}

// Record is the JSON form of an observation as published to a Redis stream.
type Record struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	Owner     string `json:"owner"`
	SetID     string `json:"set"`
	Value     string `json:"value"`
}

func NewRecord(obs Observation) Record {
	return Record{
		Kind:      obs.Kind.String(),
		Namespace: obs.Namespace,
		Owner:     strings.ToLower(obs.Owner.Hex()),
		SetID:     obs.SetID.Hex(),
		Value:     obs.Value,
	}
}

// StreamPayloadField is the stream entry field holding the JSON encoded Record.
const StreamPayloadField = "payload"

// NewRedisStreamHandler returns a handler that appends every observation to a Redis stream so
// off-chain indexers can follow set membership.
func NewRedisStreamHandler(client redis.UniversalClient, stream string) Handler {
	return func(ctx context.Context, obs Observation) error {
		bz, err := json.Marshal(NewRecord(obs))
		if err != nil {
			return eris.Wrap(err, "failed to encode observation")
		}
		err = client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{StreamPayloadField: string(bz)},
		}).Err()
		if err != nil {
			return eris.Wrapf(err, "failed to publish observation to stream %s", stream)
		}
		return nil
	}
}
