package testkit

import (
	"math"
	"math/rand/v2"
	"sync"

	"permtest/adapters/rng"
	"permtest/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	seed uint64
}

// NewTestKit creates a test kit whose generated samples derive from seed
func NewTestKit(seed uint64) *TestKit {
	return &TestKit{seed: seed}
}

// RNGAdapter returns the seeded RNG adapter used in production
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.NewSeededAdapter()
}

// NormalSample draws n values from N(mu, sigma²). stream separates samples drawn from the same kit.
func (t *TestKit) NormalSample(stream uint64, n int, mu, sigma float64) []float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: rand.NewPCG(t.seed, stream)}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// WithNaN returns a copy of data with NaN inserted before the given positions
func WithNaN(data []float64, positions ...int) []float64 {
	out := make([]float64, 0, len(data)+len(positions))
	mark := make(map[int]int)
	for _, p := range positions {
		mark[p]++
	}
	for i, v := range data {
		for k := 0; k < mark[i]; k++ {
			out = append(out, math.NaN())
		}
		out = append(out, v)
	}
	for k := 0; k < mark[len(data)]; k++ {
		out = append(out, math.NaN())
	}
	return out
}

// ProgressCall is one recorded Report call
type ProgressCall struct {
	Current int
	Total   int
}

// RecordingReporter implements ports.ProgressReporter and keeps every call.
// StopAt > 0 makes Report fail once current reaches it.
type RecordingReporter struct {
	mu     sync.Mutex
	Calls  []ProgressCall
	StopAt int
	Err    error
}

func (r *RecordingReporter) Report(current, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, ProgressCall{Current: current, Total: total})
	if r.StopAt > 0 && current >= r.StopAt {
		return r.Err
	}
	return nil
}

// Snapshot returns a copy of the recorded calls
func (r *RecordingReporter) Snapshot() []ProgressCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressCall(nil), r.Calls...)
}

// RecordingPlotter implements ports.PlotRenderer and keeps the last plot
type RecordingPlotter struct {
	Renders int
	Last    ports.PlotData
	Err     error
}

func (p *RecordingPlotter) Render(data ports.PlotData) error {
	p.Renders++
	p.Last = data
	return p.Err
}
