package testutils

import (
	"math/rand/v2"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/argus-labs/denseset/pkg/setid"
)

// seedEnv replays a failed fuzz run when set to the seed it logged.
const seedEnv = "TEST_SEED"

var seed = sync.OnceValue(func() uint64 { //nolint:gochecknoglobals // one seed per test binary
	if s := os.Getenv(seedEnv); s != "" {
		if parsed, err := strconv.ParseUint(s, 0, 64); err == nil {
			return parsed
		}
	}
	return uint64(time.Now().UnixNano()) //nolint:gosec // overflow is acceptable for test seeds
})

// NewRand returns a PRNG for t. Every test of a binary shares one seed, which is logged so a
// failure can be replayed with TEST_SEED.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	s := seed()
	t.Logf("to reproduce: %s=0x%x", seedEnv, s)
	return rand.New(rand.NewPCG(s, s)) //nolint:gosec // weak RNG is fine for tests
}

// WeightedOp is an operation enum whose values double as their selection weight.
type WeightedOp interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// RandWeightedOp picks one of ops with probability proportional to its value.
func RandWeightedOp[T WeightedOp](r *rand.Rand, ops []T) T {
	var total int
	for _, op := range ops {
		total += int(op)
	}

	pick := r.IntN(total)
	for _, op := range ops {
		if pick < int(op) {
			return op
		}
		pick -= int(op)
	}
	panic("unreachable")
}

func RandBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// RandOwners returns n distinct random owners.
func RandOwners(r *rand.Rand, n int) []setid.Owner {
	owners := make([]setid.Owner, 0, n)
	seen := make(map[setid.Owner]struct{}, n)
	for len(owners) < n {
		var o setid.Owner
		copy(o[:], RandBytes(r, len(o)))
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		owners = append(owners, o)
	}
	return owners
}

// RandSetIDs returns n random set ids derived under tag, so they look like the ids real clients
// use.
func RandSetIDs(r *rand.Rand, tag string, n int) []setid.SetID {
	ids := make([]setid.SetID, n)
	for i := range ids {
		ids[i] = setid.Derive(tag, r.Uint64(), uint64(i))
	}
	return ids
}
