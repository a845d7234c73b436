package ports

// SampleSource names two columns of a tabular data file
type SampleSource struct {
	Path    string
	Sheet   string // xlsx only, empty means the first sheet
	Column1 string
	Column2 string
}

// SampleReader loads two independent samples from a tabular source.
// Missing cells are returned as NaN.
type SampleReader interface {
	ReadSamples(src SampleSource) (sample1, sample2 []float64, err error)
}
