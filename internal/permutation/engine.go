// Package permutation runs two-sample permutation tests on the difference in
// means and estimates how many permutations a target p-value precision needs.
//
// Exact mode enumerates every way to split the pooled observations into groups
// of the original sizes, in lexicographic order of the first group's indices.
// Random mode draws independent uniform assignments. Both split the iteration
// space into contiguous ranges, one per worker, each writing into its own part
// of the null distribution.
package permutation

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	domain "permtest/domain/permutation"
	"permtest/internal"
	"permtest/internal/combin"
	"permtest/internal/errors"
	"permtest/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Limits on the size of the null distribution unless overridden
const (
	DefaultMaxExactAssignments = 10_000_000
	DefaultMaxPermutations     = 10_000_000
)

// Engine runs permutation tests
type Engine struct {
	rngPort  ports.RNGPort
	progress ports.ProgressReporter
	plotter  ports.PlotRenderer
	logger   *internal.Logger
	workers  int
	maxExact int
	maxPerms int
}

// NewEngine creates an engine drawing random streams from rngPort.
// A nil rngPort falls back to math/rand sources seeded per worker.
func NewEngine(rngPort ports.RNGPort) *Engine {
	return &Engine{
		rngPort:  rngPort,
		logger:   internal.DefaultLogger,
		workers:  runtime.NumCPU(),
		maxExact: DefaultMaxExactAssignments,
		maxPerms: DefaultMaxPermutations,
	}
}

// SetProgressReporter installs the collaborator used when Options.ShowProgress > 0
func (e *Engine) SetProgressReporter(reporter ports.ProgressReporter) {
	e.progress = reporter
}

// SetPlotRenderer installs the collaborator used when Options.PlotResult is set
func (e *Engine) SetPlotRenderer(renderer ports.PlotRenderer) {
	e.plotter = renderer
}

// SetLogger replaces the engine logger
func (e *Engine) SetLogger(logger *internal.Logger) {
	e.logger = logger
}

// SetWorkers sets the default worker count (minimum 1)
func (e *Engine) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	e.workers = workers
}

// SetMaxExactAssignments bounds the size of exact enumerations (minimum 1)
func (e *Engine) SetMaxExactAssignments(max int) {
	if max < 1 {
		max = 1
	}
	e.maxExact = max
}

// SetMaxPermutations bounds the number of random permutations per run (minimum 1)
func (e *Engine) SetMaxPermutations(max int) {
	if max < 1 {
		max = 1
	}
	e.maxPerms = max
}

// Run performs the permutation test of mean(sample1) - mean(sample2).
// permutations is ignored in exact mode.
func (e *Engine) Run(ctx context.Context, sample1, sample2 []float64, permutations int, opts domain.Options) (*domain.Result, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if len(sample1) == 0 {
		return nil, errors.InvalidArgument("sample1 must not be empty")
	}
	if len(sample2) == 0 {
		return nil, errors.InvalidArgument("sample2 must not be empty")
	}
	if !opts.Exact && permutations < 1 {
		return nil, errors.InvalidArgument("permutations must be a positive integer, got %d", permutations)
	}
	if !opts.Exact && permutations > e.maxPerms {
		return nil, errors.InvalidArgument("%d permutations requested, more than the limit of %d", permutations, e.maxPerms)
	}

	n1, n2 := len(sample1), len(sample2)
	n := n1 + n2

	result := &domain.Result{
		RunID:     uuid.NewString(),
		Sidedness: opts.Sidedness,
		Exact:     opts.Exact,
	}
	result.EffectSize, result.ObservedDifference, result.PooledStdDev = HedgesG(sample1, sample2)
	if result.PooledStdDev == 0 || math.IsNaN(result.PooledStdDev) {
		e.addDiagnostic(result, domain.DiagnosticDegenerate,
			fmt.Sprintf("pooled standard deviation is %v; effect size is undefined", result.PooledStdDev))
	}

	// total is 0 when C(n, n1) does not fit in an int
	total, countErr := combin.Count(n, n1)
	if countErr != nil {
		total = 0
	}

	count := permutations
	if opts.Exact {
		if countErr != nil || total > e.maxExact {
			return nil, errors.InvalidArgument(
				"exact test needs C(%d, %d) = %.4g assignments, more than the limit of %d; use random permutations",
				n, n1, math.Exp(combin.LogCount(n, n1)), e.maxExact)
		}
		count = total
	} else if total > 0 && permutations > total {
		e.addDiagnostic(result, domain.DiagnosticPrecision,
			fmt.Sprintf("%d permutations requested but only %d distinct assignments exist; results will contain duplicates, consider an exact test",
				permutations, total))
	}
	result.EffectiveCount = count

	workers := opts.Workers
	if workers == 0 {
		workers = e.workers
	}
	seed := opts.Seed
	if !opts.Exact && seed == 0 {
		seed = time.Now().UnixNano()
	}

	e.logger.Debug("permutation run %s: n1=%d n2=%d exact=%t count=%d workers=%d sidedness=%s",
		result.RunID, n1, n2, opts.Exact, count, workers, opts.Sidedness)
	start := time.Now()

	null, err := e.simulate(ctx, newPool(sample1, sample2), count, workers, seed, opts)
	if err != nil {
		if errors.IsAppError(err) && !isCancellation(err) {
			return nil, err
		}
		// context cancellation or a progress reporter asking to stop
		return nil, errors.Cancelled(err)
	}

	result.NullDistribution = null
	result.PValue = PValue(null, result.ObservedDifference, opts.Sidedness)
	result.Summary = summarize(null)

	e.logger.Debug("permutation run %s finished in %s: p=%.6g observed=%.6g effect=%.6g",
		result.RunID, time.Since(start), result.PValue, result.ObservedDifference, result.EffectSize)

	if opts.PlotResult {
		e.plot(result)
	}

	return result, nil
}

// simulate builds the null distribution over count assignments
func (e *Engine) simulate(ctx context.Context, p *pool, count, workers int, seed int64, opts domain.Options) ([]float64, error) {
	null := make([]float64, count)
	tracker := newProgressTracker(e.progress, opts.ShowProgress, count)

	tasks := make([]func(context.Context) error, 0, workers)
	if opts.Exact {
		enum, err := combin.NewEnumerator(p.size(), p.n1)
		if err != nil {
			return nil, err
		}
		subs, err := enum.Partition(workers)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			out := null[sub.Start() : sub.Start()+sub.Len()]
			tasks = append(tasks, func(ctx context.Context) error {
				return exactWorker(ctx, sub, p, out, tracker)
			})
		}
	} else {
		for w, span := range combin.Partition(count, workers) {
			out := null[span.Start:span.End]
			rng, err := e.stream(ctx, w, seed)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, func(ctx context.Context) error {
				return randomWorker(ctx, rng, p, out, tracker)
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return null, nil
}

// stream returns the RNG for one worker, falling back to a local source
func (e *Engine) stream(ctx context.Context, worker int, seed int64) (*rand.Rand, error) {
	if e.rngPort != nil {
		rng, err := e.rngPort.Stream(ctx, worker, seed)
		if err == nil {
			return rng, nil
		}
		e.logger.Warn("rng stream for worker %d unavailable, using local source: %v", worker, err)
	}
	return rand.New(rand.NewSource(seed + int64(worker)*1_000_003)), nil
}

func (e *Engine) plot(result *domain.Result) {
	if e.plotter == nil {
		e.logger.Debug("plot requested for run %s but no renderer is configured", result.RunID)
		return
	}
	err := e.plotter.Render(ports.PlotData{
		NullDistribution:   result.NullDistribution,
		ObservedDifference: result.ObservedDifference,
		EffectSize:         result.EffectSize,
		PValue:             result.PValue,
	})
	if err != nil {
		e.logger.Warn("plot for run %s failed: %v", result.RunID, err)
	}
}

func (e *Engine) addDiagnostic(result *domain.Result, code domain.DiagnosticCode, message string) {
	result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{Code: code, Message: message})
	e.logger.Warn("%s: %s", code, message)
}

// Test runs a permutation test with a default engine and returns
// (p, observedDifference, effectSize)
func Test(ctx context.Context, sample1, sample2 []float64, permutations int, opts domain.Options) (float64, float64, float64, error) {
	result, err := NewEngine(nil).Run(ctx, sample1, sample2, permutations, opts)
	if err != nil {
		return math.NaN(), math.NaN(), math.NaN(), err
	}
	return result.PValue, result.ObservedDifference, result.EffectSize, nil
}

// isCancellation reports whether err came from context cancellation
func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
