package packed_test

import (
	"testing"

	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allLayouts = []packed.Layout{packed.Uint8, packed.Uint16, packed.Uint32, packed.Uint48, packed.Uint64}

func TestLayout_Density(t *testing.T) {
	t.Parallel()

	tests := []struct {
		layout       packed.Layout
		itemsPerWord uint
		unusedBits   uint
	}{
		{packed.Uint8, 32, 0},
		{packed.Uint16, 16, 0},
		{packed.Uint32, 8, 0},
		{packed.Uint48, 5, 16},
		{packed.Uint64, 4, 0},
	}
	for _, tc := range tests {
		t.Run(tc.layout.Name(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.itemsPerWord, tc.layout.ItemsPerWord())
			assert.Equal(t, tc.unusedBits, tc.layout.UnusedBits())
		})
	}
}

func TestLayout_WordsFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), packed.Uint16.WordsFor(0))
	assert.Equal(t, uint64(1), packed.Uint16.WordsFor(1))
	assert.Equal(t, uint64(1), packed.Uint16.WordsFor(16))
	assert.Equal(t, uint64(2), packed.Uint16.WordsFor(17))
	assert.Equal(t, uint64(2), packed.Uint16.WordsFor(20))
	assert.Equal(t, uint64(3), packed.Uint48.WordsFor(11))

	word, pos := packed.Uint48.Locate(11)
	assert.Equal(t, uint64(2), word)
	assert.Equal(t, uint(1), pos)
}

func TestNewLayout_Invalid(t *testing.T) {
	t.Parallel()

	_, err := packed.NewLayout("", 8)
	require.ErrorIs(t, err, packed.ErrInvalidLayout)
	_, err = packed.NewLayout("zero", 0)
	require.ErrorIs(t, err, packed.ErrInvalidLayout)
	_, err = packed.NewLayout("wide", 65)
	require.ErrorIs(t, err, packed.ErrInvalidLayout)

	l, err := packed.NewLayout("u24", 24)
	require.NoError(t, err)
	assert.Equal(t, uint(10), l.ItemsPerWord())
	assert.Equal(t, uint(16), l.UnusedBits())
	assert.Equal(t, uint64(1<<24-1), l.MaxValue())
}

func TestLayout_PositionOutOfRange(t *testing.T) {
	t.Parallel()

	for _, l := range allLayouts {
		var w packed.Word
		_, err := l.Pack(w, l.ItemsPerWord(), 1)
		require.ErrorIs(t, err, packed.ErrPositionOutOfRange, l.Name())
		_, err = l.Unpack(w, l.ItemsPerWord())
		require.ErrorIs(t, err, packed.ErrPositionOutOfRange, l.Name())
	}
}

func TestLayout_ValueOutOfRange(t *testing.T) {
	t.Parallel()

	var w packed.Word
	_, err := packed.Uint16.Pack(w, 0, 1<<16)
	require.ErrorIs(t, err, packed.ErrValueOutOfRange)
	_, err = packed.Uint48.Pack(w, 4, 1<<48)
	require.ErrorIs(t, err, packed.ErrValueOutOfRange)

	_, err = packed.Uint48.Pack(w, 4, 1<<48-1)
	require.NoError(t, err)
}

// Property: unpack(pack(w, p, v), p) == v, and every other position keeps its value.
func TestLayout_PackRoundTripAndIsolation(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	for _, l := range allLayouts {
		var word packed.Word
		model := make([]uint64, l.ItemsPerWord())

		for range 2_000 {
			pos := uint(prng.UintN(l.ItemsPerWord()))
			value := prng.Uint64() & l.MaxValue()

			next, err := l.Pack(word, pos, value)
			require.NoError(t, err)
			model[pos] = value
			word = next

			for i := range l.ItemsPerWord() {
				got, err := l.Unpack(word, i)
				require.NoError(t, err)
				require.Equal(t, model[i], got, "layout %s position %d", l.Name(), i)
			}
		}

		// The unused high bits are never touched.
		if l.UnusedBits() > 0 {
			var high packed.Word
			high.Rsh(&word, l.ItemsPerWord()*l.BitWidth())
			assert.True(t, high.IsZero(), "layout %s wrote into unused bits", l.Name())
		}
	}
}

func TestLayout_UnpackAll(t *testing.T) {
	t.Parallel()

	var w packed.Word
	var err error
	for i, v := range []uint64{7, 42, 9} {
		w, err = packed.Uint16.Pack(w, uint(i), v)
		require.NoError(t, err)
	}

	values, err := packed.Uint16.UnpackAll(w, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 42, 9}, values)

	_, err = packed.Uint16.UnpackAll(w, 17)
	require.ErrorIs(t, err, packed.ErrPositionOutOfRange)
}

func TestWord_EncodeDecode(t *testing.T) {
	t.Parallel()

	w, err := packed.Uint48.Pack(packed.Word{}, 3, 0xABCDEF012345)
	require.NoError(t, err)

	bz := packed.EncodeWord(&w)
	require.Len(t, bz, packed.WordBytes)

	got, err := packed.DecodeWord(bz)
	require.NoError(t, err)
	assert.True(t, got.Eq(&w))

	_, err = packed.DecodeWord(bz[:31])
	require.ErrorIs(t, err, packed.ErrInvalidWord)
}

func TestParseLayout(t *testing.T) {
	t.Parallel()

	for _, l := range allLayouts {
		got, err := packed.ParseLayout(l.Name())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}

	_, err := packed.ParseLayout("u24")
	require.ErrorIs(t, err, packed.ErrInvalidLayout)
}
