package storage

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 256

var _ PrimitiveStorage = &RedisStorage{}

type RedisStorage struct {
	client redis.UniversalClient
	tracer trace.Tracer
}

func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{
		client: client,
		tracer: otel.Tracer("redis"),
	}
}

func (r *RedisStorage) GetBytes(ctx context.Context, key string) ([]byte, error) {
	bz, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if eris.Is(err, redis.Nil) {
			return nil, eris.Wrap(ErrNotFound, key)
		}
		return nil, eris.Wrap(err, "")
	}
	return bz, nil
}

func (r *RedisStorage) GetManyBytes(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	res, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	values := make([][]byte, len(keys))
	for i, v := range res {
		switch v := v.(type) {
		case nil:
		case string:
			values[i] = []byte(v)
		default:
			return nil, eris.Errorf("unexpected redis value type %T for key %s", v, keys[i])
		}
	}
	return values, nil
}

func (r *RedisStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := escapeGlob(prefix) + "*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, eris.Wrap(err, "")
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return eris.Wrap(r.client.Set(ctx, key, value, 0).Err(), "")
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return eris.Wrap(r.client.Del(ctx, key).Err(), "")
}

func (r *RedisStorage) Close(_ context.Context) error {
	err := r.client.Close()
	// Several components may share one client, the first to close it wins.
	if err == nil || eris.Is(err, redis.ErrClosed) {
		return nil
	}
	return eris.Wrap(err, "")
}

func (r *RedisStorage) StartTransaction(_ context.Context) (Transaction, error) {
	return &redisTransaction{pipeline: r.client.TxPipeline(), tracer: r.tracer}, nil
}

// redisTransaction queues writes in a MULTI/EXEC pipeline.
type redisTransaction struct {
	pipeline redis.Pipeliner
	tracer   trace.Tracer
}

func (t *redisTransaction) Set(ctx context.Context, key string, value []byte) error {
	t.pipeline.Set(ctx, key, value, 0)
	return nil
}

func (t *redisTransaction) Delete(ctx context.Context, key string) error {
	t.pipeline.Del(ctx, key)
	return nil
}

func (t *redisTransaction) EndTransaction(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "redis.transaction.end")
	defer span.End()

	if _, err := t.pipeline.Exec(ctx); err != nil {
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrap(err, "")
	}
	return nil
}

func (t *redisTransaction) Discard(_ context.Context) error {
	t.pipeline.Discard()
	return nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}
