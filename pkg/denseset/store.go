// Package denseset stores unique values contiguously per (owner, set) pair.
//
// A set keeps its elements at positions [0, length) and a reverse index from element to position,
// so insertion, membership and removal are constant time. Removal swaps the last element into the
// vacated position, which keeps the set dense at the cost of a stable iteration order. Fixed-width
// sets bit-pack their elements into 256-bit words and never hold more words than their length
// needs; variable-width sets store one element per slot.
//
// Mutations take their owner from the caller bound to the context (see setid.WithCaller) and each
// call commits as one unit through the store's storage.Buffer. Reads take the owner explicitly and
// may inspect any owner's sets.
package denseset

import (
	"context"

	"github.com/argus-labs/denseset/pkg/assert"
	"github.com/argus-labs/denseset/pkg/event"
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/armon/go-metrics"
	"github.com/rotisserie/eris"
)

// Store is a family of dense sets of T sharing one storage namespace.
type Store[T any] struct {
	buf   *storage.Buffer
	slots slots[T]
	options
}

// New returns a store of fixed-width sets packed with layout. T must be able to hold every value
// the layout can.
func New[T Element](buf *storage.Buffer, layout packed.Layout, opts ...Option) (*Store[T], error) {
	if layout.ItemsPerWord() == 0 {
		return nil, eris.Wrap(packed.ErrInvalidLayout, "zero layout")
	}
	if layout.MaxValue() > uint64(^T(0)) {
		return nil, eris.Wrapf(ErrElementTooNarrow, "layout %s needs %d bits", layout.Name(), layout.BitWidth())
	}
	return &Store[T]{
		buf:     buf,
		slots:   packedSlots[T]{buf: buf, layout: layout},
		options: newOptions(layout.Name(), opts),
	}, nil
}

// NewVariable returns a store of variable-width sets whose elements are encoded with codec.
func NewVariable[T any](buf *storage.Buffer, codec Codec[T], opts ...Option) *Store[T] {
	return &Store[T]{
		buf:     buf,
		slots:   codecSlots[T]{buf: buf, codec: codec},
		options: newOptions(codec.Name(), opts),
	}
}

// Namespace returns the storage namespace of the store's sets.
func (s *Store[T]) Namespace() string {
	return s.namespace
}

// Buffer returns the buffer the store commits through. Compound operations spanning several sets
// run inside Buffer().Atomic to commit as one unit.
func (s *Store[T]) Buffer() *storage.Buffer {
	return s.buf
}

// setRef addresses one set.
type setRef struct {
	owner setid.Owner
	id    setid.SetID
	keys  storage.SetKeys
}

func (s *Store[T]) ref(owner setid.Owner, id setid.SetID) setRef {
	return setRef{owner: owner, id: id, keys: storage.NewSetKeys(s.namespace, owner, id)}
}

// callerRef addresses a set of the caller bound to ctx.
func (s *Store[T]) callerRef(ctx context.Context, id setid.SetID) (setRef, error) {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return setRef{}, err
	}
	return s.ref(owner, id), nil
}

// -------------------------------------------------------------------------------------------------
// Mutations
// -------------------------------------------------------------------------------------------------

// Add inserts v into the caller's set if it is absent and reports whether it was inserted. Adding
// a present value is a no-op, not an error.
func (s *Store[T]) Add(ctx context.Context, id setid.SetID, v T) (bool, error) {
	ref, err := s.callerRef(ctx, id)
	if err != nil {
		return false, err
	}

	var added bool
	err = s.buf.Atomic(ctx, func(ctx context.Context) error {
		var err error
		added, err = s.add(ctx, ref, v)
		return err
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Remove deletes v from the caller's set if it is present and reports whether it was removed.
// Removing an absent value is a no-op, not an error.
func (s *Store[T]) Remove(ctx context.Context, id setid.SetID, v T) (bool, error) {
	ref, err := s.callerRef(ctx, id)
	if err != nil {
		return false, err
	}

	var removed bool
	err = s.buf.Atomic(ctx, func(ctx context.Context) error {
		n, err := readLength(ctx, s.buf, ref.keys)
		if err != nil {
			return err
		}
		if removed, err = s.remove(ctx, ref, v, n); err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return s.slots.release(ctx, ref.keys, n-1, n)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Clear removes every element of the caller's set and returns them in their last stored order.
func (s *Store[T]) Clear(ctx context.Context, id setid.SetID) ([]T, error) {
	ref, err := s.callerRef(ctx, id)
	if err != nil {
		return nil, err
	}

	var cleared []T
	err = s.buf.Atomic(ctx, func(ctx context.Context) error {
		n, err := readLength(ctx, s.buf, ref.keys)
		if err != nil {
			return err
		}
		if cleared, err = s.slots.readRange(ctx, ref.keys, 0, n); err != nil {
			return err
		}
		for _, v := range cleared {
			if err := s.buf.Delete(ctx, ref.keys.Index(s.slots.member(v))); err != nil {
				return err
			}
			s.observe(ctx, event.KindRemoved, ref, v)
		}
		if err := writeLength(ctx, s.buf, ref.keys, 0); err != nil {
			return err
		}
		return s.slots.release(ctx, ref.keys, 0, n)
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

// add appends v at position length. It must run inside an Atomic scope.
func (s *Store[T]) add(ctx context.Context, ref setRef, v T) (bool, error) {
	if err := s.slots.validate(v); err != nil {
		return false, err
	}

	member := s.slots.member(v)
	pos, err := readPosition(ctx, s.buf, ref.keys, member)
	if err != nil || pos.Present {
		return false, err
	}

	n, err := readLength(ctx, s.buf, ref.keys)
	if err != nil {
		return false, err
	}
	if err := s.slots.push(ctx, ref.keys, n, v); err != nil {
		return false, err
	}
	if err := writePosition(ctx, s.buf, ref.keys, member, n); err != nil {
		return false, err
	}
	if err := writeLength(ctx, s.buf, ref.keys, n+1); err != nil {
		return false, err
	}

	s.observe(ctx, event.KindAdded, ref, v)
	return true, nil
}

// remove swap-removes v from a set of the given length. Storage freed by the shrink is left for
// the caller to release. It must run inside an Atomic scope.
func (s *Store[T]) remove(ctx context.Context, ref setRef, v T, length uint64) (bool, error) {
	if s.slots.validate(v) != nil {
		return false, nil
	}

	member := s.slots.member(v)
	pos, err := readPosition(ctx, s.buf, ref.keys, member)
	if err != nil || !pos.Present {
		return false, err
	}
	assert.That(pos.Index < length, "position %d of %s outside length %d", pos.Index, member, length)

	last := length - 1
	if pos.Index != last {
		moved, err := s.slots.read(ctx, ref.keys, last)
		if err != nil {
			return false, err
		}
		if err := s.slots.write(ctx, ref.keys, pos.Index, moved); err != nil {
			return false, err
		}
		if err := writePosition(ctx, s.buf, ref.keys, s.slots.member(moved), pos.Index); err != nil {
			return false, err
		}
	}
	if err := s.slots.clear(ctx, ref.keys, last); err != nil {
		return false, err
	}
	if err := s.buf.Delete(ctx, ref.keys.Index(member)); err != nil {
		return false, err
	}
	if err := writeLength(ctx, s.buf, ref.keys, last); err != nil {
		return false, err
	}

	s.observe(ctx, event.KindRemoved, ref, v)
	return true, nil
}

// observe records a committed change. Nothing is published if the enclosing scope fails.
func (s *Store[T]) observe(ctx context.Context, kind event.Kind, ref setRef, v T) {
	obs := event.Observation{
		Kind:      kind,
		Namespace: s.namespace,
		Owner:     ref.owner,
		SetID:     ref.id,
		Value:     s.slots.member(v),
	}
	s.buf.AfterCommit(ctx, func(context.Context) {
		metrics.IncrCounterWithLabels([]string{"denseset", kind.String()}, 1,
			[]metrics.Label{{Name: "namespace", Value: obs.Namespace}})
		if s.events != nil {
			s.events.Enqueue(obs)
		}
	})
}

// -------------------------------------------------------------------------------------------------
// Reads
// -------------------------------------------------------------------------------------------------

// Contains reports whether v is a member of owner's set.
func (s *Store[T]) Contains(ctx context.Context, owner setid.Owner, id setid.SetID, v T) (bool, error) {
	pos, err := s.Position(ctx, owner, id, v)
	if err != nil {
		return false, err
	}
	return pos.Present, nil
}

// Position returns where v is stored in owner's set.
func (s *Store[T]) Position(ctx context.Context, owner setid.Owner, id setid.SetID, v T) (Position, error) {
	if s.slots.validate(v) != nil {
		return Position{}, nil
	}
	return readPosition(ctx, s.buf, s.ref(owner, id).keys, s.slots.member(v))
}

// Len returns the number of elements in owner's set.
func (s *Store[T]) Len(ctx context.Context, owner setid.Owner, id setid.SetID) (uint64, error) {
	return readLength(ctx, s.buf, s.ref(owner, id).keys)
}

// At returns the element at index. It fails with ErrIndexOutOfBounds if index >= Len.
func (s *Store[T]) At(ctx context.Context, owner setid.Owner, id setid.SetID, index uint64) (T, error) {
	keys := s.ref(owner, id).keys
	n, err := readLength(ctx, s.buf, keys)
	if err != nil {
		var zero T
		return zero, err
	}
	if index >= n {
		var zero T
		return zero, eris.Wrapf(ErrIndexOutOfBounds, "index %d, length %d", index, n)
	}
	return s.slots.read(ctx, keys, index)
}

// GetAll returns every element of owner's set in stored order.
func (s *Store[T]) GetAll(ctx context.Context, owner setid.Owner, id setid.SetID) ([]T, error) {
	keys := s.ref(owner, id).keys
	n, err := readLength(ctx, s.buf, keys)
	if err != nil {
		return nil, err
	}
	return s.slots.readRange(ctx, keys, 0, n)
}

// GetFrom returns up to count elements starting at start. The range is clamped to [start, length),
// so a start at or past the end yields an empty slice.
func (s *Store[T]) GetFrom(ctx context.Context, owner setid.Owner, id setid.SetID, start, count uint64) ([]T, error) {
	keys := s.ref(owner, id).keys
	n, err := readLength(ctx, s.buf, keys)
	if err != nil {
		return nil, err
	}
	start, count = clampRange(n, start, count)
	return s.slots.readRange(ctx, keys, start, count)
}

// GetLast returns the last count elements, or all of them if the set holds fewer.
func (s *Store[T]) GetLast(ctx context.Context, owner setid.Owner, id setid.SetID, count uint64) ([]T, error) {
	keys := s.ref(owner, id).keys
	n, err := readLength(ctx, s.buf, keys)
	if err != nil {
		return nil, err
	}
	count = min(count, n)
	return s.slots.readRange(ctx, keys, n-count, count)
}

// WordCount returns the number of storage units allocated to owner's set: packed words for
// fixed-width sets, slots for variable-width sets.
func (s *Store[T]) WordCount(ctx context.Context, owner setid.Owner, id setid.SetID) (uint64, error) {
	return s.slots.allocated(ctx, s.ref(owner, id).keys)
}

func clampRange(length, start, count uint64) (uint64, uint64) {
	if start >= length {
		return start, 0
	}
	return start, min(count, length-start)
}
