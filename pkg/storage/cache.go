package storage

import (
	"context"

	"github.com/coocood/freecache"
)

var _ PrimitiveStorage = &CachedStorage{}

// CachedStorage serves reads from an in-process freecache in front of a slower backend. Entries
// are only filled on read and only refreshed after the backend accepted a write, so a failed
// transaction never leaves its values in the cache.
type CachedStorage struct {
	base  PrimitiveStorage
	cache *freecache.Cache
}

// NewCachedStorage wraps base with a cache of sizeBytes. freecache enforces a minimum of 512KB.
func NewCachedStorage(base PrimitiveStorage, sizeBytes int) *CachedStorage {
	return &CachedStorage{
		base:  base,
		cache: freecache.NewCache(sizeBytes),
	}
}

func (c *CachedStorage) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if bz, ok := c.lookup(key); ok {
		return bz, nil
	}
	bz, err := c.base.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	c.fill(key, bz)
	return bz, nil
}

func (c *CachedStorage) GetManyBytes(ctx context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	var missing []string
	var missingIdx []int
	for i, key := range keys {
		bz, ok := c.lookup(key)
		if !ok {
			missing = append(missing, key)
			missingIdx = append(missingIdx, i)
			continue
		}
		values[i] = bz
	}
	if len(missing) == 0 {
		return values, nil
	}

	fetched, err := c.base.GetManyBytes(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, bz := range fetched {
		values[missingIdx[j]] = bz
		if bz != nil {
			c.fill(missing[j], bz)
		}
	}
	return values, nil
}

func (c *CachedStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.base.Keys(ctx, prefix)
}

func (c *CachedStorage) Set(ctx context.Context, key string, value []byte) error {
	c.cache.Del([]byte(key))
	if err := c.base.Set(ctx, key, value); err != nil {
		return err
	}
	c.fill(key, value)
	return nil
}

func (c *CachedStorage) Delete(ctx context.Context, key string) error {
	c.cache.Del([]byte(key))
	return c.base.Delete(ctx, key)
}

func (c *CachedStorage) Close(ctx context.Context) error {
	c.cache.Clear()
	return c.base.Close(ctx)
}

func (c *CachedStorage) StartTransaction(ctx context.Context) (Transaction, error) {
	tx, err := c.base.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedTransaction{parent: c, tx: tx}, nil
}

// HitRate reports the fraction of cache lookups that were hits.
func (c *CachedStorage) HitRate() float64 {
	return c.cache.HitRate()
}

// lookup returns a cached value. freecache hands back nil for an empty entry, and only present
// keys are ever cached, so a nil hit is the empty value.
func (c *CachedStorage) lookup(key string) ([]byte, bool) {
	bz, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	if bz == nil {
		bz = []byte{}
	}
	return bz, true
}

// fill stores a value read from or written to the backend. A value freecache refuses (too large
// for a segment) is simply read from the backend next time.
func (c *CachedStorage) fill(key string, value []byte) {
	_ = c.cache.Set([]byte(key), value, 0)
}

type cachedWrite struct {
	key     string
	value   []byte
	deleted bool
}

type cachedTransaction struct {
	parent *CachedStorage
	tx     Transaction
	writes []cachedWrite
}

func (t *cachedTransaction) Set(ctx context.Context, key string, value []byte) error {
	if err := t.tx.Set(ctx, key, value); err != nil {
		return err
	}
	t.writes = append(t.writes, cachedWrite{key: key, value: value})
	return nil
}

func (t *cachedTransaction) Delete(ctx context.Context, key string) error {
	if err := t.tx.Delete(ctx, key); err != nil {
		return err
	}
	t.writes = append(t.writes, cachedWrite{key: key, deleted: true})
	return nil
}

func (t *cachedTransaction) EndTransaction(ctx context.Context) error {
	// Drop every touched key first so a failed commit cannot be served stale data either.
	for _, w := range t.writes {
		t.parent.cache.Del([]byte(w.key))
	}
	if err := t.tx.EndTransaction(ctx); err != nil {
		return err
	}
	for _, w := range t.writes {
		if !w.deleted {
			t.parent.fill(w.key, w.value)
		}
	}
	t.writes = nil
	return nil
}

func (t *cachedTransaction) Discard(ctx context.Context) error {
	t.writes = nil
	return t.tx.Discard(ctx)
}
