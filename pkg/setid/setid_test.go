package setid_test

import (
	"context"
	"testing"

	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	t.Parallel()

	entity := uint64(1234)
	a := setid.Derive("entity.components", entity)
	b := setid.Derive("entity.components", entity)
	assert.Equal(t, a, b)

	// Different tags, params, or param order never collide in practice.
	assert.NotEqual(t, a, setid.Derive("component.entities", entity))
	assert.NotEqual(t, a, setid.Derive("entity.components", entity+1))
	assert.NotEqual(t, setid.Derive("loc", int64(1), int64(2)), setid.Derive("loc", int64(2), int64(1)))
}

func TestDerive_IntegerWidthsEncodeTheSameWord(t *testing.T) {
	t.Parallel()

	want := setid.Derive("tag", uint64(7))
	assert.Equal(t, want, setid.Derive("tag", uint8(7)))
	assert.Equal(t, want, setid.Derive("tag", uint32(7)))
	assert.Equal(t, want, setid.Derive("tag", 7))
	assert.Equal(t, want, setid.Derive("tag", uint256.NewInt(7)))
}

func TestDerive_NegativeIntegers(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, setid.Derive("loc", -1), setid.Derive("loc", 1))
	assert.Equal(t, setid.Derive("loc", int64(-5)), setid.Derive("loc", -5))
}

func TestDerive_AddressesAndHashes(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	// An address is left padded into a word, exactly like the integer of the same value.
	assert.Equal(t, setid.Derive("inv", addr), setid.Derive("inv", uint64(0xaa)))

	h := setid.Derive("inner")
	assert.Equal(t, setid.Derive("outer", h), setid.Derive("outer", h))
}

func TestDerive_UnsupportedParamPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { setid.Derive("bad", 1.5) })
	assert.PanicsWithValue(t, "setid: unsupported param nil *uint256.Int", func() {
		setid.Derive("bad", (*uint256.Int)(nil))
	})
}

func TestDerive_TagDoesNotRunIntoParams(t *testing.T) {
	t.Parallel()

	// Tag "a" followed by word(1) and the 33 byte tag "a"+word(1) spell the same raw bytes.
	word := uint256.NewInt(1).Bytes32()
	longTag := "a" + string(word[:])
	assert.NotEqual(t, setid.Derive("a", uint64(1)), setid.Derive(longTag))
}

func TestParse(t *testing.T) {
	t.Parallel()

	owner, err := setid.ParseOwner("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xaa"), owner)

	_, err = setid.ParseOwner("not-an-address")
	require.Error(t, err)

	id := setid.Derive("x")
	got, err := setid.ParseSetID(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = setid.ParseSetID("0x1234")
	require.Error(t, err)
}

func TestCaller(t *testing.T) {
	t.Parallel()

	_, err := setid.CallerFrom(context.Background())
	require.ErrorIs(t, err, setid.ErrNoCaller)

	owner := common.HexToAddress("0x01")
	ctx := setid.WithCaller(context.Background(), owner)
	got, err := setid.CallerFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}
