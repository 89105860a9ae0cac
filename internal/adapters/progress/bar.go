// Package progress shows pipeline progress on a terminal.
package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/jobrunner/geefetch/internal/ports/output"
)

// Bar implements the Progress port with a spinner counting processed exports.
// The number of exports is not known up front, as empty periods are skipped.
type Bar struct {
	bar *progressbar.ProgressBar
}

// Ensure Bar implements the progress port.
var _ output.Progress = (*Bar)(nil)

// New creates a progress bar writing to w.
func New(w io.Writer) *Bar {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetItsString("exports"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
	return &Bar{bar: bar}
}

// Describe implements output.Progress.
func (b *Bar) Describe(description string) {
	b.bar.Describe(description)
}

// Advance implements output.Progress.
func (b *Bar) Advance() {
	_ = b.bar.Add(1)
}

// Close implements output.Progress.
func (b *Bar) Close() error {
	return b.bar.Finish()
}

// Count returns the number of exports processed so far.
func (b *Bar) Count() int64 {
	return int64(b.bar.State().CurrentNum)
}
