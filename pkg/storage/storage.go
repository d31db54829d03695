package storage

import (
	"context"
)

// Reader reads raw values by key.
type Reader interface {
	// GetBytes returns the value stored at key, or ErrNotFound.
	GetBytes(ctx context.Context, key string) ([]byte, error)
	// GetManyBytes returns one entry per key, nil where the key holds no value.
	GetManyBytes(ctx context.Context, keys []string) ([][]byte, error)
	// Keys returns every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Writer writes raw values by key.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// PrimitiveStorage is a key value backend able to apply a group of writes atomically.
type PrimitiveStorage interface {
	Reader
	Writer
	StartTransaction(ctx context.Context) (Transaction, error)
	Close(ctx context.Context) error
}

// Transaction queues writes until EndTransaction applies all of them at once. Reads are not part of
// a transaction; they go to the PrimitiveStorage that started it.
type Transaction interface {
	Writer
	EndTransaction(ctx context.Context) error
	Discard(ctx context.Context) error
}
