package denseset

import (
	"context"

	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/rotisserie/eris"
)

// Position is where an element is stored. Absence is explicit, so every value of the element type,
// zero included, can be stored.
type Position struct {
	Index   uint64
	Present bool
}

// readLength returns the length of a set. A set that was never written, or was emptied, has no
// length key.
func readLength(ctx context.Context, r storage.Reader, keys storage.SetKeys) (uint64, error) {
	bz, err := r.GetBytes(ctx, keys.Length())
	if err != nil {
		if eris.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return storage.DecodeUint64(bz)
}

func writeLength(ctx context.Context, w storage.Writer, keys storage.SetKeys, n uint64) error {
	if n == 0 {
		return w.Delete(ctx, keys.Length())
	}
	return w.Set(ctx, keys.Length(), storage.EncodeUint64(n))
}

// readPosition looks member up in the reverse index, which stores one-based positions.
func readPosition(ctx context.Context, r storage.Reader, keys storage.SetKeys, member string) (Position, error) {
	bz, err := r.GetBytes(ctx, keys.Index(member))
	if err != nil {
		if eris.Is(err, storage.ErrNotFound) {
			return Position{}, nil
		}
		return Position{}, err
	}
	p, err := storage.DecodeUint64(bz)
	if err != nil {
		return Position{}, err
	}
	if p == 0 {
		return Position{}, eris.Wrapf(ErrCorruptState, "zero index entry for %s", member)
	}
	return Position{Index: p - 1, Present: true}, nil
}

func writePosition(ctx context.Context, w storage.Writer, keys storage.SetKeys, member string, index uint64) error {
	return w.Set(ctx, keys.Index(member), storage.EncodeUint64(index+1))
}
