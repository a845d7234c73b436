package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates an independent RNG stream for one worker of a run.
	// The same (baseSeed, worker) pair always yields the same sequence.
	Stream(ctx context.Context, worker int, baseSeed int64) (*rand.Rand, error)
}
