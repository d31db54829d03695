package denseset

import (
	"context"
	"math"
	"strconv"

	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// slots is the forward array of a set. It only knows how elements are laid out in storage; the
// length counter and the reverse index are maintained by Store.
type slots[T any] interface {
	// member returns the canonical text form of v, used for the reverse index key and observations.
	member(v T) string
	validate(v T) error

	// push stores v at index length, growing storage if needed.
	push(ctx context.Context, keys storage.SetKeys, length uint64, v T) error
	write(ctx context.Context, keys storage.SetKeys, i uint64, v T) error
	read(ctx context.Context, keys storage.SetKeys, i uint64) (T, error)
	readRange(ctx context.Context, keys storage.SetKeys, start, count uint64) ([]T, error)
	// clear empties index i. It is only called on the last occupied index.
	clear(ctx context.Context, keys storage.SetKeys, i uint64) error
	// release drops storage no longer needed after the set shrank from oldLen to newLen.
	release(ctx context.Context, keys storage.SetKeys, newLen, oldLen uint64) error
	allocated(ctx context.Context, keys storage.SetKeys) (uint64, error)

	newSeen(capacity int) seen[T]
}

// seen tracks the values already visited by a batch, without touching storage.
type seen[T any] interface {
	// visit reports whether v was visited before and marks it visited.
	visit(v T) bool
}

// Element is an unsigned integer type that can be bit-packed into words.
type Element interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// packedSlots stores elements bit-packed into words, ItemsPerWord per word.
type packedSlots[T Element] struct {
	buf    *storage.Buffer
	layout packed.Layout
}

var _ slots[uint16] = packedSlots[uint16]{}

func (p packedSlots[T]) member(v T) string {
	return strconv.FormatUint(uint64(v), 10)
}

func (p packedSlots[T]) validate(v T) error {
	if uint64(v) > p.layout.MaxValue() {
		return eris.Wrapf(ErrValueOutOfRange, "layout %s: value %d exceeds %d bits",
			p.layout.Name(), uint64(v), p.layout.BitWidth())
	}
	return nil
}

func (p packedSlots[T]) readWord(ctx context.Context, keys storage.SetKeys, i uint64) (packed.Word, error) {
	bz, err := p.buf.GetBytes(ctx, keys.Word(i))
	if err != nil {
		if eris.Is(err, storage.ErrNotFound) {
			return packed.Word{}, nil
		}
		return packed.Word{}, err
	}
	return packed.DecodeWord(bz)
}

func (p packedSlots[T]) writeWord(ctx context.Context, keys storage.SetKeys, i uint64, w packed.Word) error {
	return p.buf.Set(ctx, keys.Word(i), packed.EncodeWord(&w))
}

func (p packedSlots[T]) push(ctx context.Context, keys storage.SetKeys, length uint64, v T) error {
	wi, pos := p.layout.Locate(length)

	// A new word is started only when the set is empty or its last word is full.
	var w packed.Word
	if pos != 0 {
		var err error
		if w, err = p.readWord(ctx, keys, wi); err != nil {
			return err
		}
	}
	w, err := p.layout.Pack(w, pos, uint64(v))
	if err != nil {
		return err
	}
	return p.writeWord(ctx, keys, wi, w)
}

func (p packedSlots[T]) write(ctx context.Context, keys storage.SetKeys, i uint64, v T) error {
	wi, pos := p.layout.Locate(i)
	w, err := p.readWord(ctx, keys, wi)
	if err != nil {
		return err
	}
	w, err = p.layout.Pack(w, pos, uint64(v))
	if err != nil {
		return err
	}
	return p.writeWord(ctx, keys, wi, w)
}

func (p packedSlots[T]) read(ctx context.Context, keys storage.SetKeys, i uint64) (T, error) {
	wi, pos := p.layout.Locate(i)
	w, err := p.readWord(ctx, keys, wi)
	if err != nil {
		return 0, err
	}
	v, err := p.layout.Unpack(w, pos)
	if err != nil {
		return 0, err
	}
	return T(v), nil
}

func (p packedSlots[T]) readRange(ctx context.Context, keys storage.SetKeys, start, count uint64) ([]T, error) {
	out := make([]T, 0, count)
	if count == 0 {
		return out, nil
	}

	first, _ := p.layout.Locate(start)
	last, _ := p.layout.Locate(start + count - 1)
	wordKeys := make([]string, 0, last-first+1)
	for wi := first; wi <= last; wi++ {
		wordKeys = append(wordKeys, keys.Word(wi))
	}
	raw, err := p.buf.GetManyBytes(ctx, wordKeys)
	if err != nil {
		return nil, err
	}

	words := make([]packed.Word, len(raw))
	for j, bz := range raw {
		if bz == nil {
			return nil, eris.Wrapf(ErrCorruptState, "missing word %s", wordKeys[j])
		}
		if words[j], err = packed.DecodeWord(bz); err != nil {
			return nil, eris.Wrapf(err, "word %s", wordKeys[j])
		}
	}

	for i := start; i < start+count; i++ {
		wi, pos := p.layout.Locate(i)
		v, err := p.layout.Unpack(words[wi-first], pos)
		if err != nil {
			return nil, err
		}
		out = append(out, T(v))
	}
	return out, nil
}

func (p packedSlots[T]) clear(ctx context.Context, keys storage.SetKeys, i uint64) error {
	return p.write(ctx, keys, i, 0)
}

func (p packedSlots[T]) release(ctx context.Context, keys storage.SetKeys, newLen, oldLen uint64) error {
	for wi := p.layout.WordsFor(newLen); wi < p.layout.WordsFor(oldLen); wi++ {
		if err := p.buf.Delete(ctx, keys.Word(wi)); err != nil {
			return err
		}
	}
	return nil
}

func (p packedSlots[T]) allocated(ctx context.Context, keys storage.SetKeys) (uint64, error) {
	wordKeys, err := p.buf.Keys(ctx, keys.WordPrefix())
	if err != nil {
		return 0, err
	}
	return uint64(len(wordKeys)), nil
}

func (p packedSlots[T]) newSeen(capacity int) seen[T] {
	return &seenInts[T]{large: make(map[uint64]struct{}, capacity)}
}

// bitmapLimit bounds the values tracked in the bitmap, whose size grows with the largest value.
const bitmapLimit = math.MaxUint16

// seenInts tracks small values in a bitmap and the rest in a map.
type seenInts[T Element] struct {
	small bitmap.Bitmap
	large map[uint64]struct{}
}

func (s *seenInts[T]) visit(v T) bool {
	x := uint64(v)
	if x <= bitmapLimit {
		if s.small.Contains(uint32(x)) {
			return true
		}
		s.small.Set(uint32(x))
		return false
	}
	if _, ok := s.large[x]; ok {
		return true
	}
	s.large[x] = struct{}{}
	return false
}
