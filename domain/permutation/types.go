package permutation

import (
	"strings"

	"permtest/internal/errors"
)

// Sidedness selects which tail(s) of the null distribution count as extreme
type Sidedness string

const (
	SidednessBoth    Sidedness = "both"    // two-tailed
	SidednessSmaller Sidedness = "smaller" // alternative: mean1 < mean2
	SidednessLarger  Sidedness = "larger"  // alternative: mean1 > mean2
)

// ParseSidedness converts user input to a Sidedness. Empty input means both.
func ParseSidedness(s string) (Sidedness, error) {
	switch Sidedness(strings.ToLower(strings.TrimSpace(s))) {
	case "", SidednessBoth:
		return SidednessBoth, nil
	case SidednessSmaller:
		return SidednessSmaller, nil
	case SidednessLarger:
		return SidednessLarger, nil
	default:
		return "", errors.InvalidArgument("sidedness must be one of both, smaller, larger (got %q)", s)
	}
}

// Valid reports whether s is one of the recognized values
func (s Sidedness) Valid() bool {
	switch s {
	case SidednessBoth, SidednessSmaller, SidednessLarger:
		return true
	}
	return false
}

// Options are the named options of a permutation test run
type Options struct {
	Sidedness    Sidedness // zero value is treated as both
	Exact        bool      // enumerate every distinct assignment
	ShowProgress int       // report every Nth iteration, 0 disables
	PlotResult   bool      // hand the null distribution to the plot renderer
	Workers      int       // 0 uses the engine default
	Seed         int64     // random mode seed, 0 draws a fresh one
}

// DefaultOptions returns a two-sided random-mode configuration
func DefaultOptions() Options {
	return Options{Sidedness: SidednessBoth}
}

// Normalize fills defaults and validates the options eagerly
func (o Options) Normalize() (Options, error) {
	if o.Sidedness == "" {
		o.Sidedness = SidednessBoth
	}
	if !o.Sidedness.Valid() {
		return o, errors.InvalidArgument("sidedness must be one of both, smaller, larger (got %q)", string(o.Sidedness))
	}
	if o.ShowProgress < 0 {
		return o, errors.InvalidArgument("showProgress must be 0 (disabled) or a positive stride, got %d", o.ShowProgress)
	}
	if o.Workers < 0 {
		return o, errors.InvalidArgument("workers must not be negative, got %d", o.Workers)
	}
	return o, nil
}

// DiagnosticCode classifies non-fatal conditions raised during a run
type DiagnosticCode string

const (
	// DiagnosticPrecision: more random permutations requested than distinct assignments exist
	DiagnosticPrecision DiagnosticCode = "PRECISION_WARNING"
	// DiagnosticDegenerate: pooled standard deviation is zero or undefined
	DiagnosticDegenerate DiagnosticCode = "NUMERIC_DEGENERATE"
)

// Diagnostic is a non-fatal condition attached to a Result
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
}

// NullSummary describes the simulated null distribution
type NullSummary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	P025   float64
	P975   float64
}

// Result is the outcome of a single permutation test invocation
type Result struct {
	RunID              string
	PValue             float64
	ObservedDifference float64
	EffectSize         float64
	PooledStdDev       float64
	Sidedness          Sidedness
	Exact              bool
	EffectiveCount     int
	NullDistribution   []float64
	Summary            NullSummary
	Diagnostics        []Diagnostic
}

// HasDiagnostic reports whether a diagnostic with the given code was raised
func (r *Result) HasDiagnostic(code DiagnosticCode) bool {
	for _, d := range r.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}
