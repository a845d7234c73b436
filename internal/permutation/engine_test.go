package permutation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	domain "permtest/domain/permutation"
	"permtest/internal"
	"permtest/internal/errors"
	"permtest/internal/testkit"
	"permtest/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestEngine() *Engine {
	engine := NewEngine(testkit.NewTestKit(1).RNGAdapter())
	engine.SetLogger(internal.Discard())
	return engine
}

func TestRun_ExactHandComputed(t *testing.T) {
	sample1 := []float64{1, 2, 3}
	sample2 := []float64{4, 5}

	tests := []struct {
		sidedness domain.Sidedness
		wantP     float64
	}{
		{domain.SidednessBoth, 1.0 / 11},
		{domain.SidednessSmaller, 1.0 / 11},
		{domain.SidednessLarger, 10.0 / 11},
	}

	for _, tt := range tests {
		t.Run(string(tt.sidedness), func(t *testing.T) {
			result, err := newTestEngine().Run(context.Background(), sample1, sample2, 0,
				domain.Options{Sidedness: tt.sidedness, Exact: true})
			require.NoError(t, err)

			assert.Equal(t, 10, result.EffectiveCount)
			assert.Len(t, result.NullDistribution, 10)
			assert.InDelta(t, -2.5, result.ObservedDifference, 1e-12)
			assert.InDelta(t, tt.wantP, result.PValue, 1e-12)
		})
	}
}

func TestRun_ExactNullDistributionInLexicographicOrder(t *testing.T) {
	result, err := newTestEngine().Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5}, 0,
		domain.Options{Exact: true, Workers: 3})
	require.NoError(t, err)

	// group 1 sums of the lexicographic 3-subsets of {1..5}
	sums := []float64{6, 7, 8, 8, 9, 10, 9, 10, 11, 12}
	for i, s := range sums {
		want := s/3 - (15-s)/2
		assert.InDelta(t, want, result.NullDistribution[i], 1e-12, "assignment %d", i)
	}
	// the identity assignment comes first and reproduces the observed difference
	assert.Equal(t, result.ObservedDifference, result.NullDistribution[0])
}

func TestRun_EffectSizeIsHedgesG(t *testing.T) {
	sample1 := []float64{2, 4, 6, 8}
	sample2 := []float64{1, 3, 5}

	result, err := newTestEngine().Run(context.Background(), sample1, sample2, 0, domain.Options{Exact: true})
	require.NoError(t, err)

	// var1 = 20/3, var2 = 4; pooled = sqrt((3*20/3 + 2*4) / 5) = sqrt(28/5)
	pooled := math.Sqrt(28.0 / 5)
	assert.InDelta(t, 2.0, result.ObservedDifference, 1e-12)
	assert.InDelta(t, pooled, result.PooledStdDev, 1e-12)
	assert.InDelta(t, 2.0/pooled, result.EffectSize, 1e-12)
	assert.Equal(t, 35, result.EffectiveCount)
}

func TestRun_ExactIsDeterministic(t *testing.T) {
	kit := testkit.NewTestKit(7)
	sample1 := kit.NormalSample(1, 6, 0, 1)
	sample2 := kit.NormalSample(2, 7, 0.5, 1)

	first, err := newTestEngine().Run(context.Background(), sample1, sample2, 0, domain.Options{Exact: true, Workers: 1})
	require.NoError(t, err)
	second, err := newTestEngine().Run(context.Background(), sample1, sample2, 0, domain.Options{Exact: true, Workers: 5})
	require.NoError(t, err)

	assert.Equal(t, 1716, first.EffectiveCount)
	assert.Equal(t, first.PValue, second.PValue)
	assert.Equal(t, first.ObservedDifference, second.ObservedDifference)
	assert.Equal(t, first.EffectSize, second.EffectSize)
	assert.Equal(t, first.NullDistribution, second.NullDistribution)
}

func TestRun_DegenerateSamples(t *testing.T) {
	result, err := newTestEngine().Run(context.Background(), []float64{1, 1, 1}, []float64{1, 1, 1}, 0,
		domain.Options{Exact: true})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.ObservedDifference)
	assert.Equal(t, 0.0, result.PooledStdDev)
	assert.True(t, math.IsNaN(result.EffectSize))
	assert.Equal(t, 20, result.EffectiveCount)
	// no assignment is strictly more extreme than 0
	assert.InDelta(t, 1.0/21, result.PValue, 1e-12)
	assert.True(t, result.HasDiagnostic(domain.DiagnosticDegenerate))
}

func TestRun_SwappingSamples(t *testing.T) {
	sample1 := []float64{3, 9, 4, 12, 7}
	sample2 := []float64{1, 5, 2, 6}

	forward, err := newTestEngine().Run(context.Background(), sample1, sample2, 0, domain.Options{Exact: true})
	require.NoError(t, err)
	backward, err := newTestEngine().Run(context.Background(), sample2, sample1, 0, domain.Options{Exact: true})
	require.NoError(t, err)

	assert.InDelta(t, forward.ObservedDifference, -backward.ObservedDifference, 1e-12)
	assert.InDelta(t, forward.EffectSize, -backward.EffectSize, 1e-12)
	assert.Equal(t, forward.PValue, backward.PValue)
	assert.Equal(t, forward.EffectiveCount, backward.EffectiveCount)
}

func TestRun_NaNValuesAreIgnored(t *testing.T) {
	sample1 := []float64{3, 9, 4, 12, 7}
	sample2 := []float64{1, 5, 2, 6}

	clean, err := newTestEngine().Run(context.Background(), sample1, sample2, 200, domain.Options{Seed: 3})
	require.NoError(t, err)
	dirty, err := newTestEngine().Run(context.Background(),
		testkit.WithNaN(sample1, 0, 5), testkit.WithNaN(sample2, 2), 200, domain.Options{Seed: 3})
	require.NoError(t, err)

	assert.Equal(t, clean.ObservedDifference, dirty.ObservedDifference)
	assert.Equal(t, clean.EffectSize, dirty.EffectSize)
	assert.Greater(t, dirty.PValue, 0.0)
	assert.LessOrEqual(t, dirty.PValue, 1.0)
}

func TestRun_AllNaNSamplePropagates(t *testing.T) {
	result, err := newTestEngine().Run(context.Background(), []float64{math.NaN(), math.NaN()}, []float64{1, 2}, 0,
		domain.Options{Exact: true})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(result.ObservedDifference))
	assert.True(t, math.IsNaN(result.EffectSize))
	assert.InDelta(t, 1.0/7, result.PValue, 1e-12)
}

func TestRun_RandomSeedIsReproducible(t *testing.T) {
	kit := testkit.NewTestKit(11)
	sample1 := kit.NormalSample(1, 30, 0, 1)
	sample2 := kit.NormalSample(2, 25, 0.3, 1)
	opts := domain.Options{Seed: 1234, Workers: 4}

	first, err := newTestEngine().Run(context.Background(), sample1, sample2, 2000, opts)
	require.NoError(t, err)
	second, err := newTestEngine().Run(context.Background(), sample1, sample2, 2000, opts)
	require.NoError(t, err)

	assert.Equal(t, 2000, first.EffectiveCount)
	assert.Equal(t, first.NullDistribution, second.NullDistribution)
	assert.Equal(t, first.PValue, second.PValue)
	assert.Empty(t, first.Diagnostics)
}

func TestRun_RandomApproachesExact(t *testing.T) {
	sample1 := []float64{12, 15, 9, 14, 11, 13}
	sample2 := []float64{8, 10, 7, 9, 11, 6}

	exact, err := newTestEngine().Run(context.Background(), sample1, sample2, 0, domain.Options{Exact: true})
	require.NoError(t, err)
	random, err := newTestEngine().Run(context.Background(), sample1, sample2, 20000, domain.Options{Seed: 99})
	require.NoError(t, err)

	assert.Equal(t, 924, exact.EffectiveCount)
	assert.InDelta(t, exact.PValue, random.PValue, 0.01)
	assert.True(t, random.HasDiagnostic(domain.DiagnosticPrecision))
}

func TestRun_StrongEffectIsSignificant(t *testing.T) {
	kit := testkit.NewTestKit(5)
	sample1 := kit.NormalSample(1, 40, 2, 1)
	sample2 := kit.NormalSample(2, 40, 0, 1)

	result, err := newTestEngine().Run(context.Background(), sample1, sample2, 1000, domain.Options{Seed: 8})
	require.NoError(t, err)

	assert.InDelta(t, 1.0/1001, result.PValue, 1e-12)
	assert.Greater(t, result.EffectSize, 1.0)
	assert.Less(t, result.Summary.P025, result.Summary.P975)
	assert.Less(t, math.Abs(result.Summary.Mean), 0.2)
}

func TestRun_PrecisionWarning(t *testing.T) {
	result, err := newTestEngine().Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5}, 50,
		domain.Options{Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 50, result.EffectiveCount)
	assert.True(t, result.HasDiagnostic(domain.DiagnosticPrecision))
	assert.False(t, result.HasDiagnostic(domain.DiagnosticDegenerate))
}

func TestRun_InvalidArguments(t *testing.T) {
	tests := []struct {
		name         string
		sample1      []float64
		sample2      []float64
		permutations int
		opts         domain.Options
	}{
		{"empty sample1", nil, []float64{1}, 10, domain.Options{}},
		{"empty sample2", []float64{1}, []float64{}, 10, domain.Options{}},
		{"zero permutations", []float64{1}, []float64{2}, 0, domain.Options{}},
		{"negative permutations", []float64{1}, []float64{2}, -5, domain.Options{}},
		{"unknown sidedness", []float64{1}, []float64{2}, 10, domain.Options{Sidedness: "greater"}},
		{"negative progress stride", []float64{1}, []float64{2}, 10, domain.Options{ShowProgress: -1}},
		{"negative workers", []float64{1}, []float64{2}, 10, domain.Options{Workers: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestEngine().Run(context.Background(), tt.sample1, tt.sample2, tt.permutations, tt.opts)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))
		})
	}
}

func TestRun_ExactTooLarge(t *testing.T) {
	engine := newTestEngine()
	engine.SetMaxExactAssignments(100)

	_, err := engine.Run(context.Background(), make([]float64, 5), make([]float64, 5), 0, domain.Options{Exact: true})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))

	_, err = newTestEngine().Run(context.Background(), make([]float64, 200), make([]float64, 200), 0, domain.Options{Exact: true})
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))
}

func TestRun_PermutationsAboveLimit(t *testing.T) {
	_, err := newTestEngine().Run(context.Background(), []float64{1, 2}, []float64{3, 4}, math.MaxInt, domain.Options{Seed: 1})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))

	engine := newTestEngine()
	engine.SetMaxPermutations(1000)

	_, err = engine.Run(context.Background(), []float64{1, 2}, []float64{3, 4}, 1001, domain.Options{Seed: 1})
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))

	result, err := engine.Run(context.Background(), []float64{1, 2}, []float64{3, 4}, 1000, domain.Options{Seed: 1})
	require.NoError(t, err)
	assert.Len(t, result.NullDistribution, 1000)
}

func TestRun_ProgressReportsEveryNth(t *testing.T) {
	reporter := &testkit.RecordingReporter{}
	engine := newTestEngine()
	engine.SetProgressReporter(reporter)

	_, err := engine.Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5}, 0,
		domain.Options{Exact: true, ShowProgress: 3, Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, []testkit.ProgressCall{{Current: 3, Total: 10}, {Current: 6, Total: 10}, {Current: 9, Total: 10}}, reporter.Snapshot())
}

func TestRun_ProgressAcrossWorkers(t *testing.T) {
	reporter := &testkit.RecordingReporter{}
	engine := newTestEngine()
	engine.SetProgressReporter(reporter)

	_, err := engine.Run(context.Background(), []float64{1, 2, 3, 4}, []float64{5, 6, 7}, 700,
		domain.Options{ShowProgress: 100, Workers: 4, Seed: 2})
	require.NoError(t, err)

	calls := reporter.Snapshot()
	currents := make([]int, 0, len(calls))
	for _, c := range calls {
		assert.Equal(t, 700, c.Total)
		currents = append(currents, c.Current)
	}
	sort.Ints(currents)
	assert.Equal(t, []int{100, 200, 300, 400, 500, 600, 700}, currents)
}

func TestRun_ProgressDisabled(t *testing.T) {
	reporter := &testkit.RecordingReporter{}
	engine := newTestEngine()
	engine.SetProgressReporter(reporter)

	_, err := engine.Run(context.Background(), []float64{1, 2}, []float64{3, 4}, 10, domain.Options{Seed: 1})
	require.NoError(t, err)
	assert.Empty(t, reporter.Snapshot())
}

func TestRun_ReporterErrorCancels(t *testing.T) {
	stop := fmt.Errorf("user pressed stop")
	reporter := &testkit.RecordingReporter{StopAt: 50, Err: stop}
	engine := newTestEngine()
	engine.SetProgressReporter(reporter)

	_, err := engine.Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5, 6}, 100000,
		domain.Options{ShowProgress: 10, Seed: 4})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))
	assert.ErrorIs(t, err, stop)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Run(ctx, []float64{1, 2, 3}, []float64{4, 5, 6}, 1000, domain.Options{Seed: 4})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))
	assert.ErrorIs(t, err, context.Canceled)
}

type mockPlotRenderer struct {
	mock.Mock
}

func (m *mockPlotRenderer) Render(data ports.PlotData) error {
	args := m.Called(data)
	return args.Error(0)
}

func TestRun_PlotReceivesResult(t *testing.T) {
	plotter := &mockPlotRenderer{}
	plotter.On("Render", mock.MatchedBy(func(d ports.PlotData) bool {
		return len(d.NullDistribution) == 10 && d.ObservedDifference == -2.5
	})).Return(nil).Once()

	engine := newTestEngine()
	engine.SetPlotRenderer(plotter)

	result, err := engine.Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5}, 0,
		domain.Options{Exact: true, PlotResult: true})
	require.NoError(t, err)

	plotter.AssertExpectations(t)
	data := plotter.Calls[0].Arguments.Get(0).(ports.PlotData)
	assert.Equal(t, result.PValue, data.PValue)
	assert.Equal(t, result.EffectSize, data.EffectSize)
}

func TestRun_PlotFailureIsNotFatal(t *testing.T) {
	plotter := &testkit.RecordingPlotter{Err: fmt.Errorf("no display")}
	engine := newTestEngine()
	engine.SetPlotRenderer(plotter)

	_, err := engine.Run(context.Background(), []float64{1, 2}, []float64{3, 4}, 0,
		domain.Options{Exact: true, PlotResult: true})
	require.NoError(t, err)
	assert.Equal(t, 1, plotter.Renders)

	_, err = engine.Run(context.Background(), []float64{1, 2}, []float64{3, 4}, 0, domain.Options{Exact: true})
	require.NoError(t, err)
	assert.Equal(t, 1, plotter.Renders, "no plot unless requested")
}

type mockRNGPort struct {
	mock.Mock
}

func (m *mockRNGPort) Stream(ctx context.Context, worker int, baseSeed int64) (*rand.Rand, error) {
	args := m.Called(ctx, worker, baseSeed)
	return nil, args.Error(1)
}

func TestRun_RNGPortFailureFallsBack(t *testing.T) {
	rngPort := &mockRNGPort{}
	rngPort.On("Stream", mock.Anything, mock.Anything, int64(5)).Return(nil, fmt.Errorf("entropy pool empty"))

	engine := NewEngine(rngPort)
	engine.SetLogger(internal.Discard())
	engine.SetWorkers(2)

	result, err := engine.Run(context.Background(), []float64{1, 2, 3}, []float64{4, 5, 6}, 100, domain.Options{Seed: 5})
	require.NoError(t, err)
	assert.Len(t, result.NullDistribution, 100)
	rngPort.AssertNumberOfCalls(t, "Stream", 2)
}

func TestTest_ReturnsTriple(t *testing.T) {
	p, observed, effect, err := Test(context.Background(), []float64{1, 2, 3}, []float64{4, 5}, 0,
		domain.Options{Exact: true})
	require.NoError(t, err)

	assert.InDelta(t, 1.0/11, p, 1e-12)
	assert.InDelta(t, -2.5, observed, 1e-12)
	assert.Less(t, effect, 0.0)

	p, _, _, err = Test(context.Background(), nil, []float64{1}, 10, domain.DefaultOptions())
	assert.Error(t, err)
	assert.True(t, math.IsNaN(p))
}

func TestRun_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n1 := rapid.IntRange(1, 6).Draw(rt, "n1")
		n2 := rapid.IntRange(1, 6).Draw(rt, "n2")
		values := rapid.SliceOfN(rapid.IntRange(-20, 20), n1+n2, n1+n2).Draw(rt, "values")
		exact := rapid.Bool().Draw(rt, "exact")

		pooled := make([]float64, len(values))
		for i, v := range values {
			pooled[i] = float64(v)
		}
		sample1, sample2 := pooled[:n1], pooled[n1:]

		opts := domain.Options{Exact: exact, Seed: 17, Workers: rapid.IntRange(1, 4).Draw(rt, "workers")}
		run := func(s domain.Sidedness) *domain.Result {
			opts.Sidedness = s
			result, err := newTestEngine().Run(context.Background(), sample1, sample2, 300, opts)
			require.NoError(rt, err)
			return result
		}

		both := run(domain.SidednessBoth)
		smaller := run(domain.SidednessSmaller)
		larger := run(domain.SidednessLarger)

		count := float64(both.EffectiveCount)
		for _, r := range []*domain.Result{both, smaller, larger} {
			assert.Greater(rt, r.PValue, 0.0)
			assert.LessOrEqual(rt, r.PValue, 1.0)
			assert.GreaterOrEqual(rt, r.PValue, 1/(count+1)-1e-15)
		}

		ties := 0
		for _, d := range smaller.NullDistribution {
			if d == smaller.ObservedDifference {
				ties++
			}
		}
		// smaller and larger share one seeded null distribution
		assert.InDelta(rt, 1+float64(1-ties)/(count+1), smaller.PValue+larger.PValue, 1e-9)
	})
}
