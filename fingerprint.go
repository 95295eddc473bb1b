package sstable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-farm"
)

// Fingerprint hashes a key into a 32-bit filter input. Implementations must
// be deterministic.
type Fingerprint func(key []byte) uint32

// FarmFingerprint is the default fingerprint, based on farmhash.
func FarmFingerprint(key []byte) uint32 {
	return farm.Fingerprint32(key)
}

// XXHashFingerprint folds a 64-bit xxhash into 32 bits.
func XXHashFingerprint(key []byte) uint32 {
	h := xxhash.Sum64(key)
	return uint32(h>>32) ^ uint32(h)
}
