package event_test

import (
	"context"
	"testing"

	"github.com/argus-labs/denseset/pkg/event"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/testutils"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing event manager operations
// -------------------------------------------------------------------------------------------------
// This test verifies the manager by applying random sequences of enqueue and dispatch operations
// and comparing what the handlers saw against a Go slice of pending observations.
// -------------------------------------------------------------------------------------------------

func TestManager_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const opsMax = 1 << 14

	// A small channel forces the overflow path.
	impl := event.NewManager(8)
	model := make([]event.Observation, 0)

	var dispatched []event.Observation
	impl.Subscribe(func(_ context.Context, obs event.Observation) error {
		dispatched = append(dispatched, obs)
		return nil
	})

	for range opsMax {
		switch testutils.RandWeightedOp(prng, managerOps) {
		case opEnqueue:
			obs := event.Observation{
				Kind:      event.Kind(prng.IntN(2)),
				Namespace: "u16",
				SetID:     setid.Derive("fuzz", prng.Uint64()),
				Value:     "1",
			}
			impl.Enqueue(obs)
			model = append(model, obs)

			// Property: nothing is delivered before dispatch.
			assert.Equal(t, len(model), impl.Pending())

		case opDispatch:
			require.NoError(t, impl.Dispatch(context.Background()))

			// Property: handlers see every pending observation in enqueue order.
			assert.Equal(t, model, dispatched)
			assert.Equal(t, 0, impl.Pending())

			model = model[:0]
			dispatched = dispatched[:0]

		default:
			panic("unreachable")
		}
	}
}

type managerOp uint8

const (
	opEnqueue  managerOp = 80
	opDispatch managerOp = 20
)

var managerOps = []managerOp{opEnqueue, opDispatch}

func TestManager_HandlersPerKind(t *testing.T) {
	t.Parallel()

	m := event.NewManager(0)
	var added, removed event.Log
	m.RegisterHandler(event.KindAdded, added.Handle)
	m.RegisterHandler(event.KindRemoved, removed.Handle)

	m.Enqueue(event.Observation{Kind: event.KindAdded, Value: "7"})
	m.Enqueue(event.Observation{Kind: event.KindRemoved, Value: "7"})
	m.Enqueue(event.Observation{Kind: event.KindAdded, Value: "9"})
	require.NoError(t, m.Dispatch(context.Background()))

	require.Len(t, added.Entries(), 2)
	assert.Equal(t, "7", added.Entries()[0].Value)
	assert.Equal(t, "9", added.Entries()[1].Value)
	require.Len(t, removed.Entries(), 1)
	assert.Equal(t, event.KindRemoved, removed.Entries()[0].Kind)
}

func TestManager_DispatchCollectsErrors(t *testing.T) {
	t.Parallel()

	m := event.NewManager(0)
	var log event.Log
	m.Subscribe(func(context.Context, event.Observation) error {
		return eris.New("handler failed")
	})
	m.Subscribe(log.Handle)

	m.Enqueue(event.Observation{Kind: event.KindAdded})
	m.Enqueue(event.Observation{Kind: event.KindRemoved})

	err := m.Dispatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error(s)")

	// A failing handler does not keep the others from running, and the queue is still cleared.
	assert.Len(t, log.Entries(), 2)
	assert.Equal(t, 0, m.Pending())

	// CommitHook swallows the error after logging it.
	m.Enqueue(event.Observation{Kind: event.KindAdded})
	m.CommitHook(zerolog.Nop())(context.Background())
	assert.Equal(t, 0, m.Pending())
	assert.Len(t, log.Entries(), 3)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "added", event.KindAdded.String())
	assert.Equal(t, "removed", event.KindRemoved.String())
	assert.Equal(t, "unknown", event.Kind(9).String())
}

func TestRedisStreamHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := testutils.NewRedisClient(t)

	owner := setid.Owner{0xaa}
	set := setid.Derive("stream", uint64(1))
	handler := event.NewRedisStreamHandler(client, "denseset:observations")

	require.NoError(t, handler(ctx, event.Observation{
		Kind: event.KindAdded, Namespace: "u16", Owner: owner, SetID: set, Value: "42",
	}))
	require.NoError(t, handler(ctx, event.Observation{
		Kind: event.KindRemoved, Namespace: "u16", Owner: owner, SetID: set, Value: "42",
	}))

	entries, err := client.XRange(ctx, "denseset:observations", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var record event.Record
	payload, ok := entries[1].Values[event.StreamPayloadField].(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(payload), &record))
	assert.Equal(t, event.Record{
		Kind:      "removed",
		Namespace: "u16",
		Owner:     "0xaa00000000000000000000000000000000000000",
		SetID:     set.Hex(),
		Value:     "42",
	}, record)
}

func TestRedisStreamHandler_ClosedClient(t *testing.T) {
	t.Parallel()
	client, mr := testutils.NewRedisClient(t)
	mr.Close()

	handler := event.NewRedisStreamHandler(client, "s")
	require.Error(t, handler(context.Background(), event.Observation{Kind: event.KindAdded}))
}
