package rng

import (
	"context"
	"math/rand"
)

// SeededAdapter implements ports.RNGPort with deterministic math/rand sources
type SeededAdapter struct{}

// NewSeededAdapter creates a seeded RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// Stream creates the RNG for one worker. Workers of the same run get
// decorrelated sources derived from baseSeed.
func (r *SeededAdapter) Stream(ctx context.Context, worker int, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(mix(baseSeed + int64(worker)*0x5851F42D4C957F2D))), nil
}

// mix is the splitmix64 finalizer
func mix(x int64) int64 {
	z := uint64(x)
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
