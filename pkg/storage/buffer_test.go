package storage_test

import (
	"context"
	"testing"

	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/argus-labs/denseset/pkg/testutils"
	"github.com/rotisserie/eris"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

var errBoom = eris.New("boom")

func newBuffer(t *testing.T, opts ...storage.BufferOption) (*storage.Buffer, storage.PrimitiveStorage) {
	t.Helper()
	db := storage.NewTMDBStorage(testutils.NewMemDB(t))
	return storage.NewBuffer(db, opts...), db
}

func TestBuffer_WritesRequireScope(t *testing.T) {
	ctx := context.Background()
	buf, _ := newBuffer(t)

	assert.ErrorIs(t, buf.Set(ctx, "k", []byte("v")), storage.ErrNoScope)
	assert.ErrorIs(t, buf.Delete(ctx, "k"), storage.ErrNoScope)
	assert.Assert(t, !buf.InScope())
}

func TestBuffer_CommitsOnlyAtOutermostScope(t *testing.T) {
	ctx := context.Background()
	buf, db := newBuffer(t)

	err := buf.Atomic(ctx, func(ctx context.Context) error {
		assert.Assert(t, buf.InScope())
		assert.NilError(t, buf.Set(ctx, "a", []byte("1")))

		err := buf.Atomic(ctx, func(ctx context.Context) error {
			return buf.Set(ctx, "b", []byte("2"))
		})
		assert.NilError(t, err)

		// The nested scope succeeded but nothing reaches the backend before the outer scope ends.
		_, err = db.GetBytes(ctx, "b")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// Reads through the buffer see staged writes.
		got, err := buf.GetBytes(ctx, "b")
		assert.NilError(t, err)
		assert.DeepEqual(t, []byte("2"), got)
		return nil
	})
	assert.NilError(t, err)
	assert.Equal(t, 0, buf.Pending())

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := db.GetBytes(ctx, key)
		assert.NilError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestBuffer_OuterFailureDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	buf, db := newBuffer(t)

	err := buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Set(ctx, "a", []byte("1")))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, buf.Pending())

	_, err = db.GetBytes(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = buf.GetBytes(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuffer_NestedFailureRollsBackToSavepoint(t *testing.T) {
	ctx := context.Background()
	buf, db := newBuffer(t)

	assert.NilError(t, buf.Atomic(ctx, func(ctx context.Context) error {
		return buf.Set(ctx, "a", []byte("committed"))
	}))

	err := buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Set(ctx, "a", []byte("outer")))

		err := buf.Atomic(ctx, func(ctx context.Context) error {
			assert.NilError(t, buf.Set(ctx, "a", []byte("inner")))
			assert.NilError(t, buf.Delete(ctx, "a"))
			assert.NilError(t, buf.Set(ctx, "c", []byte("inner")))
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		got, err := buf.GetBytes(ctx, "a")
		assert.NilError(t, err)
		assert.Equal(t, "outer", string(got))
		_, err = buf.GetBytes(ctx, "c")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})
	assert.NilError(t, err)

	got, err := db.GetBytes(ctx, "a")
	assert.NilError(t, err)
	assert.Equal(t, "outer", string(got))
	_, err = db.GetBytes(ctx, "c")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuffer_StagedDeleteHidesCommittedValue(t *testing.T) {
	ctx := context.Background()
	buf, _ := newBuffer(t)

	assert.NilError(t, buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Set(ctx, "p:1", []byte("x")))
		return buf.Set(ctx, "p:2", []byte("y"))
	}))

	assert.NilError(t, buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Delete(ctx, "p:1"))
		assert.NilError(t, buf.Set(ctx, "p:3", []byte("z")))
		assert.NilError(t, buf.Set(ctx, "q:1", []byte("z")))

		keys, err := buf.Keys(ctx, "p:")
		assert.NilError(t, err)
		assert.DeepEqual(t, []string{"p:2", "p:3"}, keys)

		values, err := buf.GetManyBytes(ctx, []string{"p:1", "p:2", "p:3"})
		assert.NilError(t, err)
		assert.Assert(t, values[0] == nil)
		assert.Equal(t, "y", string(values[1]))
		assert.Equal(t, "z", string(values[2]))
		return nil
	}))
}

func TestBuffer_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	buf, _ := newBuffer(t)

	assert.NilError(t, buf.Atomic(ctx, func(ctx context.Context) error {
		value := []byte("abc")
		assert.NilError(t, buf.Set(ctx, "k", value))
		value[0] = 'z'

		got, err := buf.GetBytes(ctx, "k")
		assert.NilError(t, err)
		assert.Equal(t, "abc", string(got))
		return nil
	}))
}

func TestBuffer_AfterCommit(t *testing.T) {
	ctx := context.Background()

	var ran []string
	buf, _ := newBuffer(t, storage.WithCommitHook(func(context.Context) {
		ran = append(ran, "hook")
	}))

	err := buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Set(ctx, "k", []byte("v")))
		buf.AfterCommit(ctx, func(context.Context) { ran = append(ran, "outer") })

		_ = buf.Atomic(ctx, func(ctx context.Context) error {
			buf.AfterCommit(ctx, func(context.Context) { ran = append(ran, "failed") })
			return errBoom
		})
		_ = buf.Atomic(ctx, func(ctx context.Context) error {
			buf.AfterCommit(ctx, func(context.Context) { ran = append(ran, "nested") })
			return nil
		})

		assert.Assert(t, is.Len(ran, 0))
		return nil
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"outer", "nested", "hook"}, ran)

	ran = nil
	err = buf.Atomic(ctx, func(ctx context.Context) error {
		buf.AfterCommit(ctx, func(context.Context) { ran = append(ran, "dropped") })
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Assert(t, is.Len(ran, 0))

	// Outside of a scope the callback runs right away.
	buf.AfterCommit(ctx, func(context.Context) { ran = append(ran, "now") })
	assert.DeepEqual(t, []string{"now"}, ran)
}

func TestBuffer_FailedCommitDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	db := &failingStorage{PrimitiveStorage: storage.NewTMDBStorage(testutils.NewMemDB(t))}
	buf := storage.NewBuffer(db)

	var ran bool
	err := buf.Atomic(ctx, func(ctx context.Context) error {
		assert.NilError(t, buf.Set(ctx, "k", []byte("v")))
		buf.AfterCommit(ctx, func(context.Context) { ran = true })
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrTransactionFailed)
	assert.Assert(t, !ran)
	assert.Equal(t, 0, buf.Pending())

	_, err = buf.GetBytes(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// failingStorage accepts writes into a transaction but refuses to commit them.
type failingStorage struct {
	storage.PrimitiveStorage
}

func (f *failingStorage) StartTransaction(ctx context.Context) (storage.Transaction, error) {
	tx, err := f.PrimitiveStorage.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTransaction{Transaction: tx}, nil
}

type failingTransaction struct {
	storage.Transaction
}

func (f *failingTransaction) EndTransaction(ctx context.Context) error {
	_ = f.Transaction.Discard(ctx)
	return errBoom
}

func TestBuffer_RecoveredPanicLeavesNoScope(t *testing.T) {
	ctx := context.Background()
	buf, db := newBuffer(t)

	func() {
		defer func() {
			assert.Equal(t, "boom", recover())
		}()
		_ = buf.Atomic(ctx, func(ctx context.Context) error {
			assert.NilError(t, buf.Set(ctx, "lost", []byte("1")))
			return buf.Atomic(ctx, func(ctx context.Context) error {
				assert.NilError(t, buf.Set(ctx, "lost-too", []byte("2")))
				panic("boom")
			})
		})
	}()

	assert.Assert(t, !buf.InScope())
	assert.Equal(t, 0, buf.Pending())

	// Later scopes commit as usual.
	err := buf.Atomic(ctx, func(ctx context.Context) error {
		return buf.Set(ctx, "kept", []byte("3"))
	})
	assert.NilError(t, err)

	got, err := db.GetBytes(ctx, "kept")
	assert.NilError(t, err)
	assert.Equal(t, "3", string(got))
	for _, key := range []string{"lost", "lost-too"} {
		_, err = db.GetBytes(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}
