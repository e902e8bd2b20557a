// Package verdict classifies one target's maintenance run as NORMAL or
// ERROR. Aggregate is a pure function over the captured operation results
// and freshness counts, so every failure combination can be unit tested
// without touching either engine.
package verdict

import (
	"fmt"
	"strings"

	"github.com/marcus0x62/backuptools/pkg/engine"
)

// Status is the per-target classification.
type Status int

const (
	StatusNormal Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "ERROR"
	}
	return "NORMAL"
}

// RunVerdict is the terminal record for one target's run. It is consumed
// once by the reporter; nothing persists after that.
type RunVerdict struct {
	Target  string
	Status  Status
	Results []engine.Result
	Counts  []engine.AuditCount
	// Reasons names each condition that made the status ERROR. Empty for
	// a NORMAL verdict.
	Reasons []string
}

// Aggregate computes the verdict for one target.
//
// The status is ERROR iff any of: borg prune or compact exited non-zero,
// restic forget/prune or check exited non-zero, or either engine's recent
// snapshot count is below one. Borg's own check exit code is recorded in
// the results but deliberately excluded from the failure conditions; that
// asymmetry reproduces the operational policy this tool enforces, where a
// long borg check is advisory while a restic check failure is actionable.
func Aggregate(target string, results []engine.Result, counts []engine.AuditCount) RunVerdict {
	v := RunVerdict{
		Target:  target,
		Results: results,
		Counts:  counts,
	}

	for _, eng := range []engine.Engine{engine.Borg, engine.Restic} {
		if engineFailed(eng, results) {
			v.Reasons = append(v.Reasons, ExitCodeLine(eng, results))
		}
	}
	for _, c := range counts {
		if c.Count < 1 {
			v.Reasons = append(v.Reasons,
				fmt.Sprintf("%s recent snapshots: %d (need at least 1)", c.Engine, c.Count))
		}
	}

	if len(v.Reasons) > 0 {
		v.Status = StatusError
	}
	return v
}

func engineFailed(eng engine.Engine, results []engine.Result) bool {
	for _, r := range results {
		if r.Engine != eng || r.ExitCode == 0 {
			continue
		}
		if eng == engine.Borg && r.Operation == engine.OpCheck {
			continue
		}
		return true
	}
	return false
}

// ExitCodeLine renders one engine's maintenance exit codes for reasons
// and reports, e.g. "Borg exit codes: prune: 0 compact: 0 check: 1".
func ExitCodeLine(eng engine.Engine, results []engine.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exit codes:", eng)
	for _, r := range results {
		if r.Engine != eng {
			continue
		}
		fmt.Fprintf(&b, " %s: %d", r.Label, r.ExitCode)
	}
	return b.String()
}
