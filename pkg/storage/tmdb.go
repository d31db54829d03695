package storage

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	dbm "github.com/tendermint/tm-db"
)

var _ PrimitiveStorage = &TMDBStorage{}

// TMDBStorage keeps sets in an embedded tm-db database, a MemDB for tests and tools or goleveldb for
// a node's local state.
type TMDBStorage struct {
	db dbm.DB
}

func NewTMDBStorage(db dbm.DB) *TMDBStorage {
	return &TMDBStorage{db: db}
}

// OpenLevelDB opens (or creates) a goleveldb database named name inside dir.
func OpenLevelDB(name, dir string) (*TMDBStorage, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open leveldb %s in %s", name, dir)
	}
	return NewTMDBStorage(db), nil
}

func (s *TMDBStorage) GetBytes(_ context.Context, key string) ([]byte, error) {
	bz, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	if bz == nil {
		return nil, eris.Wrap(ErrNotFound, key)
	}
	return bz, nil
}

func (s *TMDBStorage) GetManyBytes(_ context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	for i, key := range keys {
		bz, err := s.db.Get([]byte(key))
		if err != nil {
			return nil, eris.Wrap(err, "")
		}
		values[i] = bz
	}
	return values, nil
}

func (s *TMDBStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	itr, err := s.db.Iterator([]byte(prefix), prefixEnd([]byte(prefix)))
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	defer itr.Close()

	var keys []string
	for ; itr.Valid(); itr.Next() {
		keys = append(keys, string(itr.Key()))
	}
	if err := itr.Error(); err != nil {
		return nil, eris.Wrap(err, "")
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *TMDBStorage) Set(_ context.Context, key string, value []byte) error {
	return eris.Wrap(s.db.Set([]byte(key), value), "")
}

func (s *TMDBStorage) Delete(_ context.Context, key string) error {
	return eris.Wrap(s.db.Delete([]byte(key)), "")
}

func (s *TMDBStorage) Close(_ context.Context) error {
	return eris.Wrap(s.db.Close(), "")
}

func (s *TMDBStorage) StartTransaction(_ context.Context) (Transaction, error) {
	return &tmdbTransaction{batch: s.db.NewBatch()}, nil
}

type tmdbTransaction struct {
	batch dbm.Batch
}

func (t *tmdbTransaction) Set(_ context.Context, key string, value []byte) error {
	return eris.Wrap(t.batch.Set([]byte(key), value), "")
}

func (t *tmdbTransaction) Delete(_ context.Context, key string) error {
	return eris.Wrap(t.batch.Delete([]byte(key)), "")
}

func (t *tmdbTransaction) EndTransaction(_ context.Context) error {
	defer t.batch.Close()
	return eris.Wrap(t.batch.Write(), "")
}

func (t *tmdbTransaction) Discard(_ context.Context) error {
	return eris.Wrap(t.batch.Close(), "")
}

// prefixEnd returns the smallest key greater than every key starting with prefix, or nil when no
// such key exists.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
