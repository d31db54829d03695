package denseset

import (
	"context"

	"github.com/argus-labs/denseset/pkg/setid"
)

// Change is the outcome of one batch item. Applied is false for items that were already present
// (AddBatch), absent (RemoveBatch), or repeated earlier in the same batch.
type Change[T any] struct {
	Value   T
	Applied bool
}

// AddBatch adds every value in input order and returns one Change per input item. Each new value
// takes the next free position at the time it is processed. The batch commits as one unit, so a
// value the layout cannot hold fails the whole batch.
func (s *Store[T]) AddBatch(ctx context.Context, id setid.SetID, values []T) ([]Change[T], error) {
	ref, err := s.callerRef(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := make([]Change[T], len(values))
	err = s.buf.Atomic(ctx, func(ctx context.Context) error {
		visited := s.slots.newSeen(len(values))
		for i, v := range values {
			changes[i].Value = v
			if visited.visit(v) {
				continue
			}
			added, err := s.add(ctx, ref, v)
			if err != nil {
				return err
			}
			changes[i].Applied = added
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("namespace", s.namespace).Str("set", ref.id.Hex()).
		Int("items", len(values)).Msg("add batch committed")
	return changes, nil
}

// RemoveBatch swap-removes every value in input order and returns one Change per input item.
// Storage freed by the batch is released once, after the last item.
func (s *Store[T]) RemoveBatch(ctx context.Context, id setid.SetID, values []T) ([]Change[T], error) {
	ref, err := s.callerRef(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := make([]Change[T], len(values))
	err = s.buf.Atomic(ctx, func(ctx context.Context) error {
		initial, err := readLength(ctx, s.buf, ref.keys)
		if err != nil {
			return err
		}

		n := initial
		visited := s.slots.newSeen(len(values))
		for i, v := range values {
			changes[i].Value = v
			if n == 0 || visited.visit(v) {
				continue
			}
			removed, err := s.remove(ctx, ref, v, n)
			if err != nil {
				return err
			}
			if removed {
				changes[i].Applied = true
				n--
			}
		}
		return s.slots.release(ctx, ref.keys, n, initial)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("namespace", s.namespace).Str("set", ref.id.Hex()).
		Int("items", len(values)).Msg("remove batch committed")
	return changes, nil
}
