// Package restic drives a restic repository through its maintenance and
// listing operations. Retention and space reclamation are a single restic
// invocation ("forget --prune"), so this adapter exposes two maintenance
// operations where borg needs three.
package restic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
)

// pruneLabel names the combined forget-and-prune step in reports, making
// clear a single exit code covers both halves.
const pruneLabel = "forget/prune"

// Adapter implements engine.Adapter for restic.
type Adapter struct {
	runner *execrun.Runner
	plan   Plan
}

// New creates a restic adapter for a single target.
func New(runner *execrun.Runner, plan Plan) *Adapter {
	return &Adapter{runner: runner, plan: plan}
}

// Engine identifies this adapter.
func (a *Adapter) Engine() engine.Engine { return engine.Restic }

// Operations returns the maintenance sequence for restic.
func (a *Adapter) Operations() []engine.Operation {
	return []engine.Operation{engine.OpPrune, engine.OpCheck}
}

// Run executes one operation and reports its outcome. It never returns
// an error; start failures and timeouts surface as synthetic exit codes
// in the result.
func (a *Adapter) Run(ctx context.Context, op engine.Operation, sink execrun.LineSink) engine.Result {
	args := a.argsFor(op)
	start := time.Now()
	res := a.runner.Run(ctx, execrun.Spec{
		Binary:  a.plan.Binary,
		Args:    args,
		Env:     a.env(),
		Timeout: a.plan.Timeout,
	}, sink)
	label := op.String()
	if op == engine.OpPrune {
		label = pruneLabel
	}
	return engine.Result{
		Engine:      engine.Restic,
		Operation:   op,
		Label:       label,
		ExitCode:    res.ExitCode,
		Lines:       res.Lines,
		TimedOut:    res.TimedOut,
		StartFailed: res.StartFailed,
		Duration:    time.Since(start),
	}
}

func (a *Adapter) argsFor(op engine.Operation) []string {
	var args []string
	switch op {
	case engine.OpPrune:
		args = append([]string{"forget", "--prune"}, a.plan.Policy.ResticArgs()...)
	case engine.OpCheck:
		args = []string{"check"}
	case engine.OpList:
		args = []string{"snapshots", "--json"}
	default:
		return nil
	}
	if a.plan.SFTPCommand != "" {
		args = append(args, "-o", "sftp.command="+a.plan.SFTPCommand)
	}
	return args
}

func (a *Adapter) env() []string {
	env := execrun.BaseEnv()
	env = append(env, "RESTIC_REPOSITORY="+a.plan.Repository)
	env = append(env, "RESTIC_PASSWORD="+a.plan.Password)
	return env
}

// snapshotListing mirrors the subset of restic's "snapshots --json"
// output the audit needs.
type snapshotListing []struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
}

// ParseSnapshotTimes extracts snapshot times from a successful
// "snapshots --json" result.
func (a *Adapter) ParseSnapshotTimes(res engine.Result) ([]time.Time, error) {
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("restic snapshots exited with code %d", res.ExitCode)
	}
	raw := strings.TrimSpace(execrun.JoinOutput(res.Lines))
	if raw == "" {
		return nil, fmt.Errorf("restic snapshots produced no output")
	}

	var listing snapshotListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, fmt.Errorf("parse restic snapshots output: %w", err)
	}

	times := make([]time.Time, 0, len(listing))
	for _, snap := range listing {
		if snap.Time.IsZero() {
			return nil, fmt.Errorf("snapshot %q has no timestamp", snap.ID)
		}
		times = append(times, snap.Time)
	}
	return times, nil
}
