// Package random provides seeds and per-invocation random sources for dice
// evaluation.
//
// Seeds come from crypto/rand. Each source is a fresh PCG generator owned by a
// single invocation, so concurrent rolls never share generator state.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// pcgStream decorrelates the PCG increment from the seed.
const pcgStream = 0x9e3779b97f4a7c15

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewSeededSource returns a deterministic source for the given seed.
func NewSeededSource(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^pcgStream))
}

// NewSource returns a source seeded from crypto/rand along with its seed so
// callers can report or replay the roll.
func NewSource() (*rand.Rand, int64, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, 0, err
	}
	return NewSeededSource(seed), seed, nil
}

// ResolveSource uses the requested seed when present, otherwise a fresh one.
func ResolveSource(requested *int64) (*rand.Rand, int64, error) {
	if requested != nil {
		return NewSeededSource(*requested), *requested, nil
	}
	return NewSource()
}
