// Package engine wires a storage backend, the commit buffer and observation publishing into one
// handle that builds dense set stores and their clients.
package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/ecs"
	"github.com/argus-labs/denseset/pkg/event"
	"github.com/argus-labs/denseset/pkg/inventory"
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	dbm "github.com/tendermint/tm-db"
)

const levelDBName = "denseset"

type Engine struct {
	storage storage.PrimitiveStorage
	buffer  *storage.Buffer
	events  *event.Manager
	logger  zerolog.Logger
	backend StorageType

	redis     redis.UniversalClient
	ownsRedis bool // the engine built the client and closes it
}

// Open loads the engine config from the environment, merges opts over it and opens the configured
// backend.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	cfg, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid engine options")
	}

	e := &Engine{
		events:  event.NewManager(0),
		logger:  zerolog.Nop(),
		backend: options.StorageType,
	}
	if options.Logger != nil {
		e.logger = options.Logger.With().Str("component", "denseset").Logger()
	}

	if options.StorageType == StorageRedis || options.EventStream != "" {
		if err := e.connectRedis(ctx, options); err != nil {
			return nil, err
		}
	}

	var base storage.PrimitiveStorage
	switch options.StorageType {
	case StorageMemory:
		base = storage.NewTMDBStorage(dbm.NewMemDB())
	case StorageRedis:
		base = storage.NewRedisStorage(e.redis)
	case StorageLevelDB:
		if base, err = storage.OpenLevelDB(levelDBName, options.LevelDBDir); err != nil {
			e.closeRedis()
			return nil, err
		}
	case StorageUndefined: // rejected by validate
	}
	if options.CacheBytes > 0 {
		base = storage.NewCachedStorage(base, options.CacheBytes)
	}
	e.storage = base

	e.events.Subscribe(event.NewLogHandler(e.logger))
	if options.EventStream != "" {
		e.events.Subscribe(event.NewRedisStreamHandler(e.redis, options.EventStream))
	}
	bufferOpts := []storage.BufferOption{
		storage.WithBufferLogger(e.logger),
		storage.WithCommitHook(e.events.CommitHook(e.logger)),
	}
	if options.Tracer != nil {
		bufferOpts = append(bufferOpts, storage.WithTracer(options.Tracer))
	}
	e.buffer = storage.NewBuffer(base, bufferOpts...)

	e.logger.Info().
		Str("storage", options.StorageType.String()).
		Int("cache_bytes", options.CacheBytes).
		Str("event_stream", options.EventStream).
		Msg("engine opened")
	return e, nil
}

func (e *Engine) connectRedis(ctx context.Context, opts Options) error {
	if opts.RedisClient != nil {
		e.redis = opts.RedisClient
	} else {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		e.ownsRedis = true
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		e.closeRedis()
		return eris.Wrapf(err, "failed to reach redis at %s", opts.RedisAddr)
	}
	return nil
}

func (e *Engine) closeRedis() {
	if e.ownsRedis {
		_ = e.redis.Close()
	}
}

// Close releases the backend. A Redis client passed in through Options stays open.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	// Closing a Redis backend closes its client.
	isRedis := e.backend == StorageRedis
	if !isRedis || e.ownsRedis {
		if err := e.storage.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if !isRedis && e.ownsRedis {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return eris.Wrap(errors.Join(errs...), "failed to close engine")
}

// Buffer returns the buffer every store of the engine commits through. Running several store
// operations inside Buffer().Atomic commits them together.
func (e *Engine) Buffer() *storage.Buffer { return e.buffer }

func (e *Engine) Storage() storage.PrimitiveStorage { return e.storage }

func (e *Engine) Events() *event.Manager { return e.events }

func (e *Engine) Logger() zerolog.Logger { return e.logger }

// storeOptions puts the engine's defaults before opts so callers can override them.
func (e *Engine) storeOptions(opts []denseset.Option) []denseset.Option {
	return append([]denseset.Option{denseset.WithEvents(e.events), denseset.WithLogger(e.logger)}, slices.Clip(opts)...)
}

// Fixed returns a store of bit-packed sets committing through the engine.
func Fixed[T denseset.Element](e *Engine, layout packed.Layout, opts ...denseset.Option) (*denseset.Store[T], error) {
	return denseset.New[T](e.buffer, layout, e.storeOptions(opts)...)
}

// Variable returns a store of variable-width sets committing through the engine.
func Variable[T any](e *Engine, codec denseset.Codec[T], opts ...denseset.Option) *denseset.Store[T] {
	return denseset.NewVariable(e.buffer, codec, e.storeOptions(opts)...)
}

func (e *Engine) World() (*ecs.World, error) {
	return ecs.NewWorld(e.buffer, ecs.WithEvents(e.events), ecs.WithLogger(e.logger))
}

func (e *Engine) Inventory() *inventory.Inventory {
	return inventory.New(e.buffer, e.storeOptions(nil)...)
}
