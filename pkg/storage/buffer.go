package storage

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/armon/go-metrics"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Buffer stages writes in memory and commits them to a PrimitiveStorage in one transaction, so the
// backend never holds the intermediate state of an operation.
//
// All writes happen inside Atomic. Reads through the Buffer observe staged writes; reads made
// directly against the backend only ever see committed state. When the outermost Atomic call
// returns an error every staged write is discarded. A nested Atomic call that fails is rolled back
// to the point where it started, leaving the writes of its enclosing scope intact.
//
// A Buffer has a single writer. Callers running genuinely concurrent writers must serialize them
// before they reach the Buffer.
type Buffer struct {
	db PrimitiveStorage

	staged  map[string]stagedValue
	journal []journalEntry

	// afterCommit callbacks belong to the current outermost scope; finalizers run after every commit.
	afterCommit []func(context.Context)
	finalizers  []func(context.Context)

	depth  int
	logger zerolog.Logger
	tracer trace.Tracer
}

type stagedValue struct {
	value   []byte
	deleted bool
}

// journalEntry records what was staged for key before a write, so a failed scope can be undone.
type journalEntry struct {
	key    string
	prev   stagedValue
	staged bool
}

type savepoint struct {
	journal     int
	afterCommit int
}

type BufferOption func(*Buffer)

func WithBufferLogger(logger zerolog.Logger) BufferOption {
	return func(b *Buffer) {
		b.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) BufferOption {
	return func(b *Buffer) {
		b.tracer = tracer
	}
}

// WithCommitHook registers fn to run after every successful commit, after the scope's own
// AfterCommit callbacks.
func WithCommitHook(fn func(context.Context)) BufferOption {
	return func(b *Buffer) {
		b.finalizers = append(b.finalizers, fn)
	}
}

func NewBuffer(db PrimitiveStorage, opts ...BufferOption) *Buffer {
	b := &Buffer{
		db:     db,
		staged: make(map[string]stagedValue),
		logger: zerolog.Nop(),
		tracer: otel.Tracer("storage"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Storage returns the backend the buffer commits to.
func (b *Buffer) Storage() PrimitiveStorage {
	return b.db
}

// Atomic runs fn as one unit. The outermost call commits every write staged during fn, or none of
// them if fn or the commit fails. There is no retry.
func (b *Buffer) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	sp := b.savepoint()
	err := b.run(ctx, sp, fn)
	if err != nil {
		b.rollback(sp)
		return err
	}
	if b.depth > 0 {
		return nil
	}
	return b.commit(ctx)
}

// run calls fn one level deeper. A panic in fn drops the writes staged since sp and restores the
// depth before it propagates, so a recovered panic cannot leave the buffer stuck inside a scope.
func (b *Buffer) run(ctx context.Context, sp savepoint, fn func(ctx context.Context) error) error {
	b.depth++
	defer func() {
		b.depth--
		if r := recover(); r != nil {
			b.rollback(sp)
			panic(r)
		}
	}()
	return fn(ctx)
}

// InScope reports whether the caller is running inside Atomic.
func (b *Buffer) InScope() bool {
	return b.depth > 0
}

// AfterCommit queues fn to run once the current outermost scope has committed. It is dropped if the
// scope, or the nested scope it was queued in, fails. Outside of a scope fn runs immediately since
// there is nothing left to commit.
func (b *Buffer) AfterCommit(ctx context.Context, fn func(context.Context)) {
	if b.depth == 0 {
		fn(ctx)
		return
	}
	b.afterCommit = append(b.afterCommit, fn)
}

// Pending returns the number of staged keys.
func (b *Buffer) Pending() int {
	return len(b.staged)
}

func (b *Buffer) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if sv, ok := b.staged[key]; ok {
		if sv.deleted {
			return nil, eris.Wrap(ErrNotFound, key)
		}
		return sv.value, nil
	}
	return b.db.GetBytes(ctx, key)
}

func (b *Buffer) GetManyBytes(ctx context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	var missing []string
	var missingIdx []int
	for i, key := range keys {
		if sv, ok := b.staged[key]; ok {
			if !sv.deleted {
				values[i] = sv.value
			}
			continue
		}
		missing = append(missing, key)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return values, nil
	}

	fetched, err := b.db.GetManyBytes(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, bz := range fetched {
		values[missingIdx[j]] = bz
	}
	return values, nil
}

func (b *Buffer) Keys(ctx context.Context, prefix string) ([]string, error) {
	committed, err := b.db.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(committed))
	keys := make([]string, 0, len(committed))
	for _, key := range committed {
		seen[key] = struct{}{}
		if sv, ok := b.staged[key]; ok && sv.deleted {
			continue
		}
		keys = append(keys, key)
	}
	for key, sv := range b.staged {
		if sv.deleted || !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Buffer) Set(_ context.Context, key string, value []byte) error {
	if b.depth == 0 {
		return eris.Wrapf(ErrNoScope, "set %s", key)
	}
	b.record(key)
	b.staged[key] = stagedValue{value: bytes.Clone(value)}
	return nil
}

func (b *Buffer) Delete(_ context.Context, key string) error {
	if b.depth == 0 {
		return eris.Wrapf(ErrNoScope, "delete %s", key)
	}
	b.record(key)
	b.staged[key] = stagedValue{deleted: true}
	return nil
}

func (b *Buffer) record(key string) {
	prev, staged := b.staged[key]
	b.journal = append(b.journal, journalEntry{key: key, prev: prev, staged: staged})
}

func (b *Buffer) savepoint() savepoint {
	return savepoint{journal: len(b.journal), afterCommit: len(b.afterCommit)}
}

// rollback undoes every write recorded after sp, newest first.
func (b *Buffer) rollback(sp savepoint) {
	for i := len(b.journal) - 1; i >= sp.journal; i-- {
		e := b.journal[i]
		if e.staged {
			b.staged[e.key] = e.prev
		} else {
			delete(b.staged, e.key)
		}
	}
	b.journal = b.journal[:sp.journal]
	b.afterCommit = b.afterCommit[:sp.afterCommit]
}

func (b *Buffer) reset() {
	b.staged = make(map[string]stagedValue)
	b.journal = b.journal[:0]
	b.afterCommit = nil
}

func (b *Buffer) commit(ctx context.Context) error {
	callbacks := b.afterCommit
	if len(b.staged) == 0 {
		b.reset()
		b.runCallbacks(ctx, callbacks)
		return nil
	}

	ctx, span := b.tracer.Start(ctx, "storage.buffer.commit")
	defer span.End()
	start := time.Now()

	keys := make([]string, 0, len(b.staged))
	for key := range b.staged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	span.SetAttributes(attribute.Int("storage.writes", len(keys)))

	if err := b.write(ctx, keys); err != nil {
		b.reset()
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		metrics.IncrCounter([]string{"storage", "commit", "failed"}, 1)
		b.logger.Error().Err(err).Int("writes", len(keys)).Msg("commit failed, staged writes discarded")
		return err
	}

	metrics.MeasureSince([]string{"storage", "commit"}, start)
	metrics.IncrCounter([]string{"storage", "commit", "writes"}, float32(len(keys)))
	b.logger.Debug().Int("writes", len(keys)).Dur("took", time.Since(start)).Msg("committed")

	b.reset()
	b.runCallbacks(ctx, callbacks)
	return nil
}

func (b *Buffer) write(ctx context.Context, keys []string) error {
	tx, err := b.db.StartTransaction(ctx)
	if err != nil {
		return eris.Wrapf(ErrTransactionFailed, "start: %v", err)
	}
	for _, key := range keys {
		sv := b.staged[key]
		if sv.deleted {
			err = tx.Delete(ctx, key)
		} else {
			err = tx.Set(ctx, key, sv.value)
		}
		if err != nil {
			_ = tx.Discard(ctx)
			return eris.Wrapf(ErrTransactionFailed, "stage %s: %v", key, err)
		}
	}
	if err := tx.EndTransaction(ctx); err != nil {
		return eris.Wrapf(ErrTransactionFailed, "commit %d writes: %v", len(keys), err)
	}
	return nil
}

func (b *Buffer) runCallbacks(ctx context.Context, callbacks []func(context.Context)) {
	for _, fn := range callbacks {
		fn(ctx)
	}
	for _, fn := range b.finalizers {
		fn(ctx)
	}
}
