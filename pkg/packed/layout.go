package packed

import (
	"math"

	"github.com/rotisserie/eris"
)

// Layout describes how values of one bit width are packed into words. The packing density is
// fixed when the layout is built and never changes per call.
type Layout struct {
	name         string
	bitWidth     uint
	itemsPerWord uint
}

//nolint:gochecknoglobals // predefined layouts
var (
	Uint8  = mustLayout("u8", 8)
	Uint16 = mustLayout("u16", 16)
	Uint32 = mustLayout("u32", 32)
	Uint48 = mustLayout("u48", 48)
	Uint64 = mustLayout("u64", 64)
)

// NewLayout returns a layout for values of bitWidth bits. Only whole values are stored in a word,
// so any remainder of WordBits/bitWidth is left unused.
func NewLayout(name string, bitWidth uint) (Layout, error) {
	if name == "" {
		return Layout{}, eris.Wrap(ErrInvalidLayout, "name cannot be empty")
	}
	if bitWidth == 0 || bitWidth > 64 {
		return Layout{}, eris.Wrapf(ErrInvalidLayout, "bit width must be between 1 and 64, got %d", bitWidth)
	}
	return Layout{
		name:         name,
		bitWidth:     bitWidth,
		itemsPerWord: WordBits / bitWidth,
	}, nil
}

func mustLayout(name string, bitWidth uint) Layout {
	l, err := NewLayout(name, bitWidth)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseLayout returns the predefined layout with the given name.
func ParseLayout(name string) (Layout, error) {
	for _, l := range []Layout{Uint8, Uint16, Uint32, Uint48, Uint64} {
		if l.name == name {
			return l, nil
		}
	}
	return Layout{}, eris.Wrapf(ErrInvalidLayout, "unknown layout %q", name)
}

func (l Layout) Name() string       { return l.name }
func (l Layout) BitWidth() uint     { return l.bitWidth }
func (l Layout) ItemsPerWord() uint { return l.itemsPerWord }

// UnusedBits returns the number of bits in every word that never hold a value.
func (l Layout) UnusedBits() uint {
	return WordBits - l.itemsPerWord*l.bitWidth
}

// MaxValue returns the largest value that fits in the layout's bit width.
func (l Layout) MaxValue() uint64 {
	return math.MaxUint64 >> (64 - l.bitWidth)
}

// WordsFor returns the minimum number of words needed to hold length values.
func (l Layout) WordsFor(length uint64) uint64 {
	per := uint64(l.itemsPerWord)
	return (length + per - 1) / per
}

// Locate maps a dense index to the word holding it and the position inside that word.
func (l Layout) Locate(index uint64) (uint64, uint) {
	per := uint64(l.itemsPerWord)
	return index / per, uint(index % per)
}

// Pack returns word with value stored at position. The bit field at position is cleared before the
// value is written, and every other position keeps its value.
func (l Layout) Pack(word Word, position uint, value uint64) (Word, error) {
	if position >= l.itemsPerWord {
		return word, eris.Wrapf(ErrPositionOutOfRange, "layout %s: position %d, items per word %d",
			l.name, position, l.itemsPerWord)
	}
	if value > l.MaxValue() {
		return word, eris.Wrapf(ErrValueOutOfRange, "layout %s: value %d exceeds %d bits", l.name, value, l.bitWidth)
	}

	offset := position * l.bitWidth
	mask := l.mask(offset)

	var v, out Word
	v.SetUint64(value)
	v.Lsh(&v, offset)

	out.Not(&mask)
	out.And(&out, &word)
	out.Or(&out, &v)
	return out, nil
}

// Unpack returns the value stored at position in word.
func (l Layout) Unpack(word Word, position uint) (uint64, error) {
	if position >= l.itemsPerWord {
		return 0, eris.Wrapf(ErrPositionOutOfRange, "layout %s: position %d, items per word %d",
			l.name, position, l.itemsPerWord)
	}

	var v Word
	v.Rsh(&word, position*l.bitWidth)
	var m Word
	m.SetUint64(l.MaxValue())
	v.And(&v, &m)
	return v.Uint64(), nil
}

// UnpackAll returns the first n values of word.
func (l Layout) UnpackAll(word Word, n uint) ([]uint64, error) {
	if n > l.itemsPerWord {
		return nil, eris.Wrapf(ErrPositionOutOfRange, "layout %s: %d values requested, items per word %d",
			l.name, n, l.itemsPerWord)
	}
	values := make([]uint64, n)
	for i := range n {
		v, err := l.Unpack(word, i)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// mask returns the bit field of one value shifted to offset.
func (l Layout) mask(offset uint) Word {
	var m Word
	m.SetUint64(l.MaxValue())
	m.Lsh(&m, offset)
	return m
}
