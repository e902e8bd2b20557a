// Package engine defines the uniform model shared by the two snapshot
// engines: the operations the maintenance driver runs against them and the
// captured result of each invocation.
//
// The two engines have different command surfaces and error semantics; this
// package is the narrow waist that lets the auditor, the verdict
// aggregation and the reporter treat them uniformly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus0x62/backuptools/pkg/execrun"
)

// Engine identifies one of the two snapshot engines.
type Engine int

const (
	// Borg is the deduplicating archive engine (engine A).
	Borg Engine = iota
	// Restic is the content-addressable repository engine (engine B),
	// reached over an sftp transport.
	Restic
)

func (e Engine) String() string {
	switch e {
	case Borg:
		return "Borg"
	case Restic:
		return "Restic"
	default:
		return fmt.Sprintf("unknown_engine(%d)", int(e))
	}
}

// Operation is one step of a target's maintenance sequence.
type Operation int

const (
	// OpPrune marks snapshots for deletion per the retention policy. For
	// restic this is the combined forget+prune call, which also deletes.
	OpPrune Operation = iota
	// OpCompact reclaims space for objects marked by a prior OpPrune.
	// Only borg has a separate compaction step.
	OpCompact
	// OpCheck verifies repository consistency after pruning.
	OpCheck
	// OpList is the read-only structured snapshot listing used by the
	// freshness audit. Never destructive.
	OpList
)

func (o Operation) String() string {
	switch o {
	case OpPrune:
		return "prune"
	case OpCompact:
		return "compact"
	case OpCheck:
		return "check"
	case OpList:
		return "list"
	default:
		return fmt.Sprintf("unknown_operation(%d)", int(o))
	}
}

// Result is the captured outcome of one operation against one engine.
// It lives only for the duration of a single target's run.
type Result struct {
	Engine    Engine
	Operation Operation
	// Label is the engine's own name for the operation, e.g. restic's
	// OpPrune is labeled "forget/prune".
	Label    string
	ExitCode int
	// Lines is the combined stdout/stderr output, in arrival order.
	Lines []string
	// TimedOut and StartFailed explain a synthetic ExitCode.
	TimedOut    bool
	StartFailed bool
	Duration    time.Duration
}

// AuditCount is the number of snapshots an engine produced within a
// target's freshness window. Derived during the audit, never stored.
type AuditCount struct {
	Engine Engine
	Count  int
	// Source records whether the count came from the structured listing
	// or the textual fallback scan, for the operator log.
	Source string
}

// Adapter is the uniform interface the driver uses to run one engine's
// maintenance operations for one target. Implementations hold the target's
// repository descriptor and inject its credential per call.
type Adapter interface {
	// Engine identifies which engine this adapter drives.
	Engine() Engine
	// Operations returns the maintenance sequence in mandatory execution
	// order. Pruning must complete before compaction (compaction only
	// reclaims objects a prior prune marked), and checking runs last to
	// verify the post-prune repository state.
	Operations() []Operation
	// Run invokes one operation. Non-zero exit codes are results, not
	// errors; Run never fails out of band.
	Run(ctx context.Context, op Operation, sink execrun.LineSink) Result
	// ParseSnapshotTimes extracts snapshot timestamps from an OpList
	// result's output for the structured freshness audit.
	ParseSnapshotTimes(res Result) ([]time.Time, error)
}
