package testutils

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	dbm "github.com/tendermint/tm-db"
)

// NewRedisClient starts an in-process miniredis server that lives for the duration of the test and
// returns a client connected to it together with the server handle.
func NewRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:     s.Addr(),
		Password: "", // no password set
		DB:       0,  // use default DB
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, s
}

// NewMemDB returns an in-memory tm-db database closed at the end of the test.
func NewMemDB(t *testing.T) *dbm.MemDB {
	t.Helper()

	db := dbm.NewMemDB()
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
