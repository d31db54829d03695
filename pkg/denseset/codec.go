package denseset

import (
	"context"
	"strings"

	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/rotisserie/eris"
)

// Codec stores values of a variable-width set one per slot.
type Codec[T any] interface {
	// Name is the default storage namespace of sets using the codec.
	Name() string
	Encode(v T) []byte
	Decode(bz []byte) (T, error)
	// String returns the canonical text form of v. Two values are the same element iff their
	// canonical forms are equal.
	String(v T) string
}

// Uint256Codec stores 256-bit numbers. A nil value is treated as zero.
type Uint256Codec struct{}

func (Uint256Codec) Name() string { return "u256" }

func (Uint256Codec) Encode(v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return b[:]
}

func (Uint256Codec) Decode(bz []byte) (*uint256.Int, error) {
	if len(bz) != 32 {
		return nil, eris.Errorf("u256 value must be 32 bytes, got %d", len(bz))
	}
	return new(uint256.Int).SetBytes32(bz), nil
}

func (Uint256Codec) String(v *uint256.Int) string {
	if v == nil {
		return "0x0"
	}
	return v.Hex()
}

type HashCodec struct{}

func (HashCodec) Name() string { return "hash" }

func (HashCodec) Encode(v common.Hash) []byte { return v.Bytes() }

func (HashCodec) Decode(bz []byte) (common.Hash, error) {
	if len(bz) != common.HashLength {
		return common.Hash{}, eris.Errorf("hash value must be %d bytes, got %d", common.HashLength, len(bz))
	}
	return common.BytesToHash(bz), nil
}

func (HashCodec) String(v common.Hash) string { return v.Hex() }

type AddressCodec struct{}

func (AddressCodec) Name() string { return "address" }

func (AddressCodec) Encode(v common.Address) []byte { return v.Bytes() }

func (AddressCodec) Decode(bz []byte) (common.Address, error) {
	if len(bz) != common.AddressLength {
		return common.Address{}, eris.Errorf("address value must be %d bytes, got %d", common.AddressLength, len(bz))
	}
	return common.BytesToAddress(bz), nil
}

// String uses lowercase hex so the form does not depend on checksum casing.
func (AddressCodec) String(v common.Address) string { return strings.ToLower(v.Hex()) }

// BytesCodec stores arbitrary byte strings. The empty string is a legal element.
type BytesCodec struct{}

func (BytesCodec) Name() string { return "bytes" }

// Encode never returns nil, since a nil value reads back as a missing slot.
func (BytesCodec) Encode(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

func (BytesCodec) Decode(bz []byte) ([]byte, error) {
	out := make([]byte, len(bz))
	copy(out, bz)
	return out, nil
}

func (BytesCodec) String(v []byte) string { return hexutil.Encode(v) }

// codecSlots stores one encoded element per slot key.
type codecSlots[T any] struct {
	buf   *storage.Buffer
	codec Codec[T]
}

var _ slots[common.Hash] = codecSlots[common.Hash]{}

func (c codecSlots[T]) member(v T) string { return c.codec.String(v) }

func (c codecSlots[T]) validate(T) error { return nil }

func (c codecSlots[T]) push(ctx context.Context, keys storage.SetKeys, length uint64, v T) error {
	return c.write(ctx, keys, length, v)
}

func (c codecSlots[T]) write(ctx context.Context, keys storage.SetKeys, i uint64, v T) error {
	return c.buf.Set(ctx, keys.Slot(i), c.codec.Encode(v))
}

func (c codecSlots[T]) read(ctx context.Context, keys storage.SetKeys, i uint64) (T, error) {
	bz, err := c.buf.GetBytes(ctx, keys.Slot(i))
	if err != nil {
		var zero T
		if eris.Is(err, storage.ErrNotFound) {
			return zero, eris.Wrapf(ErrCorruptState, "missing slot %s", keys.Slot(i))
		}
		return zero, err
	}
	return c.codec.Decode(bz)
}

func (c codecSlots[T]) readRange(ctx context.Context, keys storage.SetKeys, start, count uint64) ([]T, error) {
	out := make([]T, 0, count)
	if count == 0 {
		return out, nil
	}

	slotKeys := make([]string, 0, count)
	for i := start; i < start+count; i++ {
		slotKeys = append(slotKeys, keys.Slot(i))
	}
	raw, err := c.buf.GetManyBytes(ctx, slotKeys)
	if err != nil {
		return nil, err
	}
	for j, bz := range raw {
		if bz == nil {
			return nil, eris.Wrapf(ErrCorruptState, "missing slot %s", slotKeys[j])
		}
		v, err := c.codec.Decode(bz)
		if err != nil {
			return nil, eris.Wrapf(err, "slot %s", slotKeys[j])
		}
		out = append(out, v)
	}
	return out, nil
}

func (c codecSlots[T]) clear(ctx context.Context, keys storage.SetKeys, i uint64) error {
	return c.buf.Delete(ctx, keys.Slot(i))
}

func (c codecSlots[T]) release(ctx context.Context, keys storage.SetKeys, newLen, oldLen uint64) error {
	for i := newLen; i < oldLen; i++ {
		if err := c.buf.Delete(ctx, keys.Slot(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c codecSlots[T]) allocated(ctx context.Context, keys storage.SetKeys) (uint64, error) {
	slotKeys, err := c.buf.Keys(ctx, keys.SlotPrefix())
	if err != nil {
		return 0, err
	}
	return uint64(len(slotKeys)), nil
}

func (c codecSlots[T]) newSeen(capacity int) seen[T] {
	return &seenMembers[T]{codec: c.codec, members: make(map[string]struct{}, capacity)}
}

type seenMembers[T any] struct {
	codec   Codec[T]
	members map[string]struct{}
}

func (s *seenMembers[T]) visit(v T) bool {
	m := s.codec.String(v)
	if _, ok := s.members[m]; ok {
		return true
	}
	s.members[m] = struct{}{}
	return false
}
