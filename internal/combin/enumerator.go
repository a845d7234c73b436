// Package combin enumerates k-combinations of {0, ..., n-1} in lexicographic
// order. An Enumerator can be restricted to a contiguous range of ranks so the
// combination space can be split across workers with every combination
// visited exactly once.
package combin

import (
	"math"

	"permtest/internal/errors"

	"gonum.org/v1/gonum/stat/combin"
)

// maxLogCount keeps C(n, k) and the intermediate products of combin.Binomial
// inside an int.
var maxLogCount = math.Log(float64(math.MaxInt64)) - 8

// LogCount returns ln C(n, k)
func LogCount(n, k int) float64 {
	return combin.LogGeneralizedBinomial(float64(n), float64(k))
}

// Count returns C(n, k), or an error if it does not fit in an int
func Count(n, k int) (int, error) {
	if n < 0 || k < 0 || k > n {
		return 0, errors.InvalidArgument("combination size out of range: n=%d k=%d", n, k)
	}
	if LogCount(n, k) > maxLogCount-math.Log(float64(n+1)) {
		return 0, errors.InvalidArgument("C(%d, %d) is too large to enumerate", n, k)
	}
	return combin.Binomial(n, k), nil
}

// Unrank writes the combination at the given lexicographic rank into dst.
// dst must have length k.
func Unrank(dst []int, rank, n int) {
	k := len(dst)
	x := 0
	for i := 0; i < k; i++ {
		for {
			// combinations that place x at position i
			c := combin.Binomial(n-x-1, k-i-1)
			if rank < c {
				break
			}
			rank -= c
			x++
		}
		dst[i] = x
		x++
	}
}

// advance moves c to its lexicographic successor. It returns false after the last one.
func advance(c []int, n int) bool {
	k := len(c)
	i := k - 1
	for i >= 0 && c[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	c[i]++
	for j := i + 1; j < k; j++ {
		c[j] = c[j-1] + 1
	}
	return true
}

// Enumerator is a lazy, restartable iterator over a rank range of k-combinations
type Enumerator struct {
	n, k       int
	total      int
	start, end int
	next       int // rank of the combination the next call to Next yields
	cur        []int
}

// NewEnumerator creates an enumerator over all C(n, k) combinations
func NewEnumerator(n, k int) (*Enumerator, error) {
	total, err := Count(n, k)
	if err != nil {
		return nil, err
	}
	return &Enumerator{
		n:     n,
		k:     k,
		total: total,
		start: 0,
		end:   total,
		next:  0,
		cur:   make([]int, k),
	}, nil
}

// Range returns an independent enumerator over ranks [start, end)
func (e *Enumerator) Range(start, end int) (*Enumerator, error) {
	if start < 0 || end > e.total || start > end {
		return nil, errors.InvalidArgument("rank range [%d, %d) outside [0, %d)", start, end, e.total)
	}
	return &Enumerator{
		n:     e.n,
		k:     e.k,
		total: e.total,
		start: start,
		end:   end,
		next:  start,
		cur:   make([]int, e.k),
	}, nil
}

// Count is the total number of combinations, C(n, k)
func (e *Enumerator) Count() int { return e.total }

// Start is the rank of the first combination in this enumerator's range
func (e *Enumerator) Start() int { return e.start }

// Len is the number of combinations in this enumerator's range
func (e *Enumerator) Len() int { return e.end - e.start }

// Next advances to the next combination in the range
func (e *Enumerator) Next() bool {
	if e.next >= e.end {
		return false
	}
	if e.next == e.start {
		Unrank(e.cur, e.start, e.n)
	} else {
		advance(e.cur, e.n)
	}
	e.next++
	return true
}

// Rank returns the lexicographic rank of the current combination
func (e *Enumerator) Rank() int { return e.next - 1 }

// Combination copies the current combination into dst, allocating if dst is nil
func (e *Enumerator) Combination(dst []int) []int {
	if dst == nil {
		dst = make([]int, e.k)
	}
	copy(dst, e.cur)
	return dst
}

// Reset rewinds the enumerator to the start of its range
func (e *Enumerator) Reset() { e.next = e.start }

// Span is a half-open range of indices [Start, End)
type Span struct {
	Start int
	End   int
}

// Len returns the number of indices in the span
func (s Span) Len() int { return s.End - s.Start }

// Partition splits [0, total) into at most parts contiguous non-empty spans
// whose sizes differ by at most one
func Partition(total, parts int) []Span {
	if total <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > total {
		parts = total
	}
	spans := make([]Span, 0, parts)
	base, extra := total/parts, total%parts
	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < extra {
			size++
		}
		spans = append(spans, Span{Start: start, End: start + size})
		start += size
	}
	return spans
}

// Partition splits this enumerator's range into independent sub-enumerators
func (e *Enumerator) Partition(parts int) ([]*Enumerator, error) {
	spans := Partition(e.Len(), parts)
	out := make([]*Enumerator, 0, len(spans))
	for _, s := range spans {
		sub, err := e.Range(e.start+s.Start, e.start+s.End)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}
