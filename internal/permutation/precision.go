package permutation

import (
	"math"

	"permtest/internal/errors"
)

// EstimatePermutations returns the number of permutations needed so that the
// p-value lands within observed p ± 3·precision:
//
//	round(level² · alpha · (1 − alpha) / precision²)
//
// level is the multiplier base itself (1, 2 or 3 for roughly 68%, 95% and 99%
// confidence), not a confidence percentage.
func EstimatePermutations(precision, alpha float64, level int) (int, error) {
	if level < 1 || level > 3 {
		return 0, errors.InvalidArgument("confidence interval level must be 1, 2 or 3, got %d", level)
	}
	if !(precision > 0) || math.IsInf(precision, 0) {
		return 0, errors.InvalidArgument("precision must be a positive number, got %v", precision)
	}
	if !(alpha > 0 && alpha < 1) {
		return 0, errors.InvalidArgument("alpha must lie in (0, 1), got %v", alpha)
	}

	l := float64(level)
	n := math.Round(l * l * alpha * (1 - alpha) / (precision * precision))
	if n >= math.MaxInt64 {
		return 0, errors.InvalidArgument("precision %v needs more permutations than can be counted", precision)
	}
	return int(n), nil
}
