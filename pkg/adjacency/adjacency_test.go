package adjacency_test

import (
	"context"
	"testing"

	"github.com/argus-labs/denseset/pkg/adjacency"
	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/argus-labs/denseset/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = setid.Owner{0x0c}

type fixture struct {
	buf   *storage.Buffer
	index *adjacency.Index[uint64, uint16]
	ctx   context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	buf := storage.NewBuffer(storage.NewTMDBStorage(testutils.NewMemDB(t)))
	forward, err := denseset.New[uint16](buf, packed.Uint16)
	require.NoError(t, err)
	reverse, err := denseset.New[uint64](buf, packed.Uint48)
	require.NoError(t, err)
	index, err := adjacency.New[uint64, uint16]("entity.components", forward, reverse)
	require.NoError(t, err)

	return fixture{buf: buf, index: index, ctx: setid.WithCaller(context.Background(), owner)}
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing adjacency operations
// -------------------------------------------------------------------------------------------------
// This test compares the index against a set of (source, target) pairs. After every operation both
// directions of the index must describe exactly the pairs in the model.
// -------------------------------------------------------------------------------------------------

func TestIndex_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax     = 1 << 10
		sourcesMax = 6
		targetsMax = 6
	)

	f := newFixture(t)
	type pair struct {
		a uint64
		b uint16
	}
	model := make(map[pair]struct{})

	for range opsMax {
		a := uint64(prng.IntN(sourcesMax))
		b := uint16(prng.IntN(targetsMax))

		switch testutils.RandWeightedOp(prng, indexOps) {
		case opLink:
			linked, err := f.index.Link(f.ctx, a, b)
			require.NoError(t, err)
			_, present := model[pair{a, b}]
			assert.Equal(t, !present, linked)
			model[pair{a, b}] = struct{}{}

		case opUnlink:
			unlinked, err := f.index.Unlink(f.ctx, a, b)
			require.NoError(t, err)
			_, present := model[pair{a, b}]
			assert.Equal(t, present, unlinked)
			delete(model, pair{a, b})

		case opLinkMany:
			targets := []uint16{b, uint16(prng.IntN(targetsMax)), b}
			_, err := f.index.LinkMany(f.ctx, a, targets)
			require.NoError(t, err)
			for _, target := range targets {
				model[pair{a, target}] = struct{}{}
			}

		case opClearSource:
			targets, err := f.index.ClearSource(f.ctx, a)
			require.NoError(t, err)
			for _, target := range targets {
				delete(model, pair{a, target})
			}

		case opClearTarget:
			sources, err := f.index.ClearTarget(f.ctx, b)
			require.NoError(t, err)
			for _, s := range sources {
				delete(model, pair{s, b})
			}

		default:
			panic("unreachable")
		}
	}

	// Clear* must have removed exactly what the model expected; compare both directions.
	for a := range uint64(sourcesMax) {
		targets, err := f.index.Targets(f.ctx, owner, a)
		require.NoError(t, err)
		for _, b := range targets {
			_, ok := model[pair{a, b}]
			assert.True(t, ok, "unexpected target %d of %d", b, a)
		}
		n, err := f.index.TargetCount(f.ctx, owner, a)
		require.NoError(t, err)
		assert.Len(t, targets, int(n))
	}
	for b := range uint16(targetsMax) {
		sources, err := f.index.Sources(f.ctx, owner, b)
		require.NoError(t, err)
		for _, a := range sources {
			_, ok := model[pair{a, b}]
			assert.True(t, ok, "unexpected source %d of %d", a, b)
		}
	}
	for p := range model {
		ok, err := f.index.Has(f.ctx, owner, p.a, p.b)
		require.NoError(t, err)
		assert.True(t, ok, "missing pair %v", p)
		sources, err := f.index.Sources(f.ctx, owner, p.b)
		require.NoError(t, err)
		assert.Contains(t, sources, p.a)
	}
}

type indexOp uint8

const (
	opLink        indexOp = 35
	opUnlink      indexOp = 25
	opLinkMany    indexOp = 15
	opClearSource indexOp = 10
	opClearTarget indexOp = 9
)

var indexOps = []indexOp{opLink, opUnlink, opLinkMany, opClearSource, opClearTarget}

func TestIndex_ClearSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.index.LinkMany(f.ctx, 1, []uint16{10, 11, 12})
	require.NoError(t, err)
	_, err = f.index.Link(f.ctx, 2, 11)
	require.NoError(t, err)

	targets, err := f.index.ClearSource(f.ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint16{10, 11, 12}, targets)

	n, err := f.index.TargetCount(f.ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	// Other sources keep their relations.
	sources, err := f.index.Sources(f.ctx, owner, 11)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, sources)
	n, err = f.index.SourceCount(f.ctx, owner, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestIndex_FailedLinkManyLeavesNoHalfRelation(t *testing.T) {
	t.Parallel()

	buf := storage.NewBuffer(storage.NewTMDBStorage(testutils.NewMemDB(t)))
	forward, err := denseset.New[uint32](buf, packed.Uint16) // targets past 16 bits are rejected
	require.NoError(t, err)
	reverse, err := denseset.New[uint32](buf, packed.Uint32)
	require.NoError(t, err)
	index, err := adjacency.New[uint32, uint32]("narrow", forward, reverse)
	require.NoError(t, err)
	ctx := setid.WithCaller(context.Background(), owner)

	_, err = index.LinkMany(ctx, 1, []uint32{5, 1 << 20})
	require.ErrorIs(t, err, denseset.ErrValueOutOfRange)

	ok, err := index.Has(ctx, owner, 1, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	sources, err := index.Sources(ctx, owner, 5)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestNew_RequiresSharedBuffer(t *testing.T) {
	t.Parallel()

	forward, err := denseset.New[uint16](storage.NewBuffer(storage.NewTMDBStorage(testutils.NewMemDB(t))), packed.Uint16)
	require.NoError(t, err)
	reverse, err := denseset.New[uint16](storage.NewBuffer(storage.NewTMDBStorage(testutils.NewMemDB(t))), packed.Uint16)
	require.NoError(t, err)

	_, err = adjacency.New[uint16, uint16]("split", forward, reverse)
	require.ErrorIs(t, err, adjacency.ErrBufferMismatch)
}
