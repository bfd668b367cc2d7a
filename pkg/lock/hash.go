package lock

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ResourceID maps a resource key to the signed 64-bit integer key space of
// engines whose advisory-lock primitives are keyed by a bigint.
//
// The mapping is a stable hash: the same string produces the same integer
// across processes, restarts and versions, so resources locked by one
// process are recognized by another. Distinct keys can collide with
// probability bounded only by the 64-bit width; two distinct resource names
// could theoretically serialize against each other, which is an accepted
// property of fixed-width hashing, not a correctness bug.
func ResourceID(key string) int64 {
	sum := blake3.Sum256([]byte(key))

	//nolint:gosec // reinterpreting the hash as signed is intentional; the
	// engine key space is a signed bigint.
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

// ResourceName maps a resource key to a fixed 16-hex-digit name for engines
// whose advisory-lock primitives are keyed by a bounded string. It is
// derived from the same digest as ResourceID and shares its stability and
// collision properties.
func ResourceName(key string) string {
	sum := blake3.Sum256([]byte(key))

	return hex.EncodeToString(sum[:8])
}
