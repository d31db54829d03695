// Package adjacency maintains a many-to-many relation between two id spaces as two mirrored dense
// sets: for every source the set of its targets, and for every target the set of its sources.
package adjacency

import (
	"context"

	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/rotisserie/eris"
)

var ErrBufferMismatch = eris.New("forward and reverse stores must share a buffer")

// Index relates sources of type A to targets of type B. Both sides of every change are written in
// one atomic scope, so the mirror never disagrees with the forward sets.
type Index[A, B denseset.Element] struct {
	tag     string
	forward *denseset.Store[B] // targets of each source
	reverse *denseset.Store[A] // sources of each target
}

// New returns an index whose set ids are derived from tag. The stores may be shared with other
// indices as long as the tags differ.
func New[A, B denseset.Element](tag string, forward *denseset.Store[B], reverse *denseset.Store[A]) (*Index[A, B], error) {
	if forward.Buffer() != reverse.Buffer() {
		return nil, eris.Wrap(ErrBufferMismatch, tag)
	}
	return &Index[A, B]{tag: tag, forward: forward, reverse: reverse}, nil
}

// TargetSet returns the id of the set holding the targets of a.
func (x *Index[A, B]) TargetSet(a A) setid.SetID {
	return setid.Derive(x.tag+".fwd", uint64(a))
}

// SourceSet returns the id of the set holding the sources of b.
func (x *Index[A, B]) SourceSet(b B) setid.SetID {
	return setid.Derive(x.tag+".rev", uint64(b))
}

func (x *Index[A, B]) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return x.forward.Buffer().Atomic(ctx, fn)
}

// Link relates a to b and reports whether the relation is new.
func (x *Index[A, B]) Link(ctx context.Context, a A, b B) (bool, error) {
	var linked bool
	err := x.atomic(ctx, func(ctx context.Context) error {
		var err error
		if linked, err = x.forward.Add(ctx, x.TargetSet(a), b); err != nil {
			return err
		}
		_, err = x.reverse.Add(ctx, x.SourceSet(b), a)
		return err
	})
	if err != nil {
		return false, err
	}
	return linked, nil
}

// Unlink removes the relation between a and b and reports whether it existed.
func (x *Index[A, B]) Unlink(ctx context.Context, a A, b B) (bool, error) {
	var unlinked bool
	err := x.atomic(ctx, func(ctx context.Context) error {
		var err error
		if unlinked, err = x.forward.Remove(ctx, x.TargetSet(a), b); err != nil {
			return err
		}
		_, err = x.reverse.Remove(ctx, x.SourceSet(b), a)
		return err
	})
	if err != nil {
		return false, err
	}
	return unlinked, nil
}

// LinkMany relates a to every target and returns one change per input item.
func (x *Index[A, B]) LinkMany(ctx context.Context, a A, targets []B) ([]denseset.Change[B], error) {
	var changes []denseset.Change[B]
	err := x.atomic(ctx, func(ctx context.Context) error {
		var err error
		if changes, err = x.forward.AddBatch(ctx, x.TargetSet(a), targets); err != nil {
			return err
		}
		for _, c := range changes {
			if !c.Applied {
				continue
			}
			if _, err := x.reverse.Add(ctx, x.SourceSet(c.Value), a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// ClearSource removes every relation of a and returns the targets it had. a is removed from each
// target's mirror set before a's own set is emptied in one batch.
func (x *Index[A, B]) ClearSource(ctx context.Context, a A) ([]B, error) {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var targets []B
	err = x.atomic(ctx, func(ctx context.Context) error {
		var err error
		if targets, err = x.forward.GetAll(ctx, owner, x.TargetSet(a)); err != nil {
			return err
		}
		for _, b := range targets {
			if _, err := x.reverse.Remove(ctx, x.SourceSet(b), a); err != nil {
				return err
			}
		}
		_, err = x.forward.RemoveBatch(ctx, x.TargetSet(a), targets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// ClearTarget removes every relation of b and returns the sources it had.
func (x *Index[A, B]) ClearTarget(ctx context.Context, b B) ([]A, error) {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var sources []A
	err = x.atomic(ctx, func(ctx context.Context) error {
		var err error
		if sources, err = x.reverse.GetAll(ctx, owner, x.SourceSet(b)); err != nil {
			return err
		}
		for _, a := range sources {
			if _, err := x.forward.Remove(ctx, x.TargetSet(a), b); err != nil {
				return err
			}
		}
		_, err = x.reverse.RemoveBatch(ctx, x.SourceSet(b), sources)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// Has reports whether a is related to b in owner's index.
func (x *Index[A, B]) Has(ctx context.Context, owner setid.Owner, a A, b B) (bool, error) {
	return x.forward.Contains(ctx, owner, x.TargetSet(a), b)
}

func (x *Index[A, B]) Targets(ctx context.Context, owner setid.Owner, a A) ([]B, error) {
	return x.forward.GetAll(ctx, owner, x.TargetSet(a))
}

func (x *Index[A, B]) Sources(ctx context.Context, owner setid.Owner, b B) ([]A, error) {
	return x.reverse.GetAll(ctx, owner, x.SourceSet(b))
}

func (x *Index[A, B]) TargetCount(ctx context.Context, owner setid.Owner, a A) (uint64, error) {
	return x.forward.Len(ctx, owner, x.TargetSet(a))
}

func (x *Index[A, B]) SourceCount(ctx context.Context, owner setid.Owner, b B) (uint64, error) {
	return x.reverse.Len(ctx, owner, x.SourceSet(b))
}
