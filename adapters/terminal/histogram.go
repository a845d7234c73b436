package terminal

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"permtest/internal/errors"
	"permtest/ports"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	colorBar      = lipgloss.Color("#20B9B4")
	colorObserved = lipgloss.Color("#F4D03F")
	colorMuted    = lipgloss.Color("#2C4A54")
)

// HistogramRenderer draws the null distribution as a horizontal text histogram
type HistogramRenderer struct {
	out   io.Writer
	bins  int
	width int

	barStyle      lipgloss.Style
	observedStyle lipgloss.Style
	axisStyle     lipgloss.Style
	legendStyle   lipgloss.Style
}

var _ ports.PlotRenderer = (*HistogramRenderer)(nil)

// NewHistogramRenderer creates a renderer with the given bin count and maximum bar width
func NewHistogramRenderer(out io.Writer, bins, width int) *HistogramRenderer {
	if bins < 1 {
		bins = 20
	}
	if width < 1 {
		width = 50
	}
	return &HistogramRenderer{
		out:           out,
		bins:          bins,
		width:         width,
		barStyle:      lipgloss.NewStyle().Foreground(colorBar),
		observedStyle: lipgloss.NewStyle().Foreground(colorObserved).Bold(true),
		axisStyle:     lipgloss.NewStyle().Foreground(colorMuted),
		legendStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBar).
			Padding(0, 1),
	}
}

// Render implements ports.PlotRenderer
func (h *HistogramRenderer) Render(data ports.PlotData) error {
	values := make([]float64, 0, len(data.NullDistribution))
	for _, v := range data.NullDistribution {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return errors.InvalidArgument("null distribution has no finite values to plot")
	}
	sort.Float64s(values)

	lo, hi := values[0], values[len(values)-1]
	observed := data.ObservedDifference
	markObserved := !math.IsNaN(observed) && !math.IsInf(observed, 0)
	if markObserved {
		lo, hi = math.Min(lo, observed), math.Max(hi, observed)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	dividers := make([]float64, h.bins+1)
	floats.Span(dividers, lo, hi)
	// the top divider is exclusive
	dividers[h.bins] = math.Nextafter(hi, math.Inf(1))
	counts := make([]float64, h.bins)
	stat.Histogram(counts, dividers, values, nil)

	observedBin := -1
	if markObserved {
		observedBin = sort.SearchFloat64s(dividers, observed)
		if observedBin == len(dividers) || dividers[observedBin] > observed {
			observedBin--
		}
		if observedBin >= h.bins {
			observedBin = h.bins - 1
		}
	}

	maxCount := floats.Max(counts)
	var b strings.Builder
	for i, c := range counts {
		n := int(math.Round(c / maxCount * float64(h.width)))
		label := h.axisStyle.Render(fmt.Sprintf("%10.4f │", dividers[i]))
		bar := strings.Repeat("█", n)
		if i == observedBin {
			fmt.Fprintf(&b, "%s %s %d %s\n", label, h.observedStyle.Render(bar), int(c),
				h.observedStyle.Render("◀ observed"))
			continue
		}
		fmt.Fprintf(&b, "%s %s %d\n", label, h.barStyle.Render(bar), int(c))
	}

	legend := fmt.Sprintf("observed difference  %.4g\neffect size (g)      %.4g\np-value              %.4g",
		observed, data.EffectSize, data.PValue)
	b.WriteString(h.legendStyle.Render(legend))
	b.WriteString("\n")

	_, err := io.WriteString(h.out, b.String())
	return err
}
