package signals

import (
	"encoding/binary"
	"math/rand"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// seededRand returns a generator whose sequence depends only on key, so the
// same entity always receives the same synthetic value across runs.
func seededRand(key string) *rand.Rand {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(key))))
	seed := int64(binary.BigEndian.Uint64(sum[:8]) & 0x7fffffffffffffff)
	return rand.New(rand.NewSource(seed))
}

// syntheticValue draws a deterministic value in [lo, hi) for key
func syntheticValue(key string, lo, hi float64) float64 {
	return lo + seededRand(key).Float64()*(hi-lo)
}
