package permutation

import (
	"math"

	domain "permtest/domain/permutation"
)

// PValue compares the observed difference against the null distribution.
// Ties with the observed value are not extreme, and one is added to both the
// count and the denominator to account for the observed assignment.
func PValue(null []float64, observed float64, sidedness domain.Sidedness) float64 {
	extreme := 0
	switch sidedness {
	case domain.SidednessSmaller:
		for _, d := range null {
			if d < observed {
				extreme++
			}
		}
	case domain.SidednessLarger:
		for _, d := range null {
			if d > observed {
				extreme++
			}
		}
	default:
		absObserved := math.Abs(observed)
		for _, d := range null {
			if math.Abs(d) > absObserved {
				extreme++
			}
		}
	}
	return float64(extreme+1) / float64(len(null)+1)
}
