package ports

// PlotData is everything a renderer needs to draw the null distribution
type PlotData struct {
	NullDistribution   []float64
	ObservedDifference float64
	EffectSize         float64
	PValue             float64
}

// PlotRenderer draws a histogram of the null distribution with a marker at the
// observed difference and a legend showing effect size and p-value
type PlotRenderer interface {
	Render(data PlotData) error
}
