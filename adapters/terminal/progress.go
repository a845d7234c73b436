package terminal

import (
	"fmt"
	"io"
	"os"

	"permtest/ports"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"
)

// ProgressBar reports permutation progress on a terminal. On a TTY it redraws
// a single gradient bar; otherwise it prints one line per report.
type ProgressBar struct {
	out         io.Writer
	bar         progress.Model
	interactive bool
	dirty       bool
}

var _ ports.ProgressReporter = (*ProgressBar)(nil)

// NewProgressBar creates a progress bar writing to out
func NewProgressBar(out io.Writer, interactive bool) *ProgressBar {
	return &ProgressBar{
		out:         out,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		interactive: interactive,
	}
}

// NewStderrProgressBar creates a progress bar on stderr, interactive when stderr is a terminal
func NewStderrProgressBar() *ProgressBar {
	fd := os.Stderr.Fd()
	return NewProgressBar(os.Stderr, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// Report implements ports.ProgressReporter
func (p *ProgressBar) Report(current, total int) error {
	if total <= 0 {
		return nil
	}
	pct := float64(current) / float64(total)
	if !p.interactive {
		_, err := fmt.Fprintf(p.out, "permutations %d/%d (%.0f%%)\n", current, total, pct*100)
		return err
	}

	_, err := fmt.Fprintf(p.out, "\r%s %d/%d", p.bar.ViewAs(pct), current, total)
	p.dirty = current < total
	if !p.dirty {
		_, err = fmt.Fprintln(p.out)
	}
	return err
}

// Finish terminates a partially drawn bar line
func (p *ProgressBar) Finish() {
	if p.interactive && p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}
