package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Source is the randomness every game operation draws from.
// *rand.Rand satisfies it; tests pass a seeded one to reproduce exact draws.
type Source interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// newSeed generates a random seed using crypto/rand.
func newSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// newSource returns a PCG-backed source. A zero seed picks a fresh one.
func newSource(seed uint64) (*rand.Rand, error) {
	if seed == 0 {
		var err error
		seed, err = newSeed()
		if err != nil {
			return nil, err
		}
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), nil
}
