package bench

import (
	"fmt"
	"io"
	"sync"

	"github.com/stormycloud/shabench/internal/stats"
)

// Reporter receives a snapshot every report interval.
type Reporter interface {
	Report(label string, s stats.Snapshot)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(label string, s stats.Snapshot)

// Report implements Reporter.
func (f ReporterFunc) Report(label string, s stats.Snapshot) { f(label, s) }

// LineReporter prints "<label>: After <n> iterations: <rate> <unit>".
type LineReporter struct {
	mu    sync.Mutex
	w     io.Writer
	unit  stats.Unit
	color bool
}

// NewLineReporter writes report lines to w. With color set the label is
// printed in bold.
func NewLineReporter(w io.Writer, unit stats.Unit, color bool) *LineReporter {
	return &LineReporter{w: w, unit: unit, color: color}
}

// Report implements Reporter.
func (r *LineReporter) Report(label string, s stats.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, FormatLine(label, s, r.unit, r.color))
}

// FormatLine renders one report line without a trailing newline.
func FormatLine(label string, s stats.Snapshot, unit stats.Unit, color bool) string {
	if color {
		label = "\x1b[1m" + label + "\x1b[0m"
	}
	return fmt.Sprintf("%s: After %d iterations: %s", label, s.Iterations, unit.Format(s.Rate))
}
