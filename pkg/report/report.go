// Package report buffers the operator-facing log of one target's
// maintenance run. Every significant step is recorded with a timestamp;
// the buffer reaches stdout only when the target's verdict is ERROR, so a
// scheduler that mails non-empty output stays quiet for healthy runs. A
// verbosity switch mirrors each entry live instead.
//
// One Reporter serves exactly one target run and is discarded with it;
// nothing accumulates across targets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
	"github.com/marcus0x62/backuptools/pkg/verdict"
)

const stampLayout = "2006-01-02 15:04:05"

// Reporter buffers one run's log.
type Reporter struct {
	out     io.Writer
	verbose bool
	clock   func() time.Time
	entries []string
	done    bool
}

// New creates a Reporter for a single target run. When verbose is set
// every entry is written to out as it is recorded and the final flush is
// suppressed, so lines never appear twice.
func New(out io.Writer, verbose bool) *Reporter {
	return &Reporter{out: out, verbose: verbose, clock: time.Now}
}

// Record appends a timestamped entry to the run buffer.
func (r *Reporter) Record(format string, args ...any) {
	if r.done {
		return
	}
	entry := fmt.Sprintf("%s %s", r.clock().Format(stampLayout), fmt.Sprintf(format, args...))
	r.entries = append(r.entries, entry)
	if r.verbose {
		fmt.Fprintln(r.out, entry)
	}
}

// Sink adapts Record for engine output capture.
func (r *Reporter) Sink() execrun.LineSink {
	return func(line string) { r.Record("%s", line) }
}

// Report consumes the verdict: it records the summary (exit codes, audit
// counts, reasons, final status), flushes the whole buffer to the output
// stream when the status is ERROR, and discards the buffer. Subsequent
// calls are no-ops, so a run can never be emitted twice.
func (r *Reporter) Report(v verdict.RunVerdict) {
	if r.done {
		return
	}

	for _, eng := range engines(v) {
		r.Record("%s", verdict.ExitCodeLine(eng, v.Results))
	}
	for _, c := range v.Counts {
		r.Record("%s recent snapshots: %d (source: %s)", c.Engine, c.Count, c.Source)
	}
	for _, reason := range v.Reasons {
		r.Record("failure condition: %s", reason)
	}
	r.Record("target %s verdict: %s", v.Target, v.Status)

	if v.Status == verdict.StatusError && !r.verbose {
		for _, entry := range r.entries {
			fmt.Fprintln(r.out, entry)
		}
	}
	r.entries = nil
	r.done = true
}

// Len reports the number of buffered entries.
func (r *Reporter) Len() int { return len(r.entries) }

func engines(v verdict.RunVerdict) []engine.Engine {
	var out []engine.Engine
	seen := map[engine.Engine]bool{}
	for _, res := range v.Results {
		if !seen[res.Engine] {
			seen[res.Engine] = true
			out = append(out, res.Engine)
		}
	}
	return out
}
