package permutation

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"permtest/internal/combin"
	"permtest/ports"
)

// cancelCheckInterval is how many iterations a worker runs between context checks
const cancelCheckInterval = 256

// progressTracker counts completed iterations across workers and forwards
// every stride-th count to the reporter, one call at a time
type progressTracker struct {
	reporter ports.ProgressReporter
	stride   int
	total    int
	done     atomic.Int64
	mu       sync.Mutex
}

func newProgressTracker(reporter ports.ProgressReporter, stride, total int) *progressTracker {
	if reporter == nil || stride <= 0 {
		return nil
	}
	return &progressTracker{reporter: reporter, stride: stride, total: total}
}

func (t *progressTracker) step() error {
	if t == nil {
		return nil
	}
	current := int(t.done.Add(1))
	if current%t.stride != 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reporter.Report(current, t.total)
}

// exactWorker fills out with the differences of every combination in enum's range
func exactWorker(ctx context.Context, enum *combin.Enumerator, p *pool, out []float64, tracker *progressTracker) error {
	member := make([]bool, p.size())
	comb := make([]int, p.n1)
	i := 0
	for enum.Next() {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		for _, idx := range comb {
			member[idx] = false
		}
		comb = enum.Combination(comb)
		for _, idx := range comb {
			member[idx] = true
		}

		out[i] = p.difference(member)
		i++

		if err := tracker.step(); err != nil {
			return err
		}
	}
	return nil
}

// randomWorker fills out with the differences of independent uniform random assignments
func randomWorker(ctx context.Context, rng *rand.Rand, p *pool, out []float64, tracker *progressTracker) error {
	n := p.size()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	member := make([]bool, n)

	for i := range out {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		// Partial Fisher-Yates: the first n1 positions of a uniform permutation
		// are a uniform n1-subset, and only the partition matters.
		for j := 0; j < p.n1; j++ {
			k := j + rng.Intn(n-j)
			order[j], order[k] = order[k], order[j]
		}
		for _, idx := range order[:p.n1] {
			member[idx] = true
		}

		out[i] = p.difference(member)

		for _, idx := range order[:p.n1] {
			member[idx] = false
		}

		if err := tracker.step(); err != nil {
			return err
		}
	}
	return nil
}
