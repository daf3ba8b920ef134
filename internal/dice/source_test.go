package dice

import (
	"math/rand/v2"
	"testing"
)

// scriptedSource returns draws in order, reduced into [0, n).
type scriptedSource struct {
	t     *testing.T
	draws []uint64
}

func (s *scriptedSource) Uint64N(n uint64) uint64 {
	s.t.Helper()
	if len(s.draws) == 0 {
		s.t.Fatalf("scripted source exhausted")
	}
	v := s.draws[0]
	s.draws = s.draws[1:]
	return v % n
}

func newScripted(t *testing.T, draws ...uint64) *scriptedSource {
	return &scriptedSource{t: t, draws: draws}
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}
