package ports

// ProgressReporter observes the permutation loop.
// Report is called with the number of completed iterations every Nth iteration;
// calls are serialized by the engine. Returning an error cancels the run.
type ProgressReporter interface {
	Report(current, total int) error
}

// ProgressFunc adapts a plain function to ProgressReporter
type ProgressFunc func(current, total int) error

func (f ProgressFunc) Report(current, total int) error {
	return f(current, total)
}
