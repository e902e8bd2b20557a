// Package borg drives a borg repository through its maintenance and
// listing operations. Borg reads the repository and passphrase from the
// environment, so the adapter assembles a scoped environment for each
// invocation and never passes credentials on the command line.
package borg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
)

// Adapter implements engine.Adapter for borg.
type Adapter struct {
	runner *execrun.Runner
	plan   Plan
}

// New creates a borg adapter for a single target.
func New(runner *execrun.Runner, plan Plan) *Adapter {
	return &Adapter{runner: runner, plan: plan}
}

// Engine identifies this adapter.
func (a *Adapter) Engine() engine.Engine { return engine.Borg }

// Operations returns the maintenance sequence for borg: prune first,
// compact reclaims what prune released, check verifies the result.
func (a *Adapter) Operations() []engine.Operation {
	return []engine.Operation{engine.OpPrune, engine.OpCompact, engine.OpCheck}
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
	return engine.Result{
		Engine:      engine.Borg,
		Operation:   op,
		Label:       op.String(),
		ExitCode:    res.ExitCode,
		Lines:       res.Lines,
		TimedOut:    res.TimedOut,
		StartFailed: res.StartFailed,
		Duration:    time.Since(start),
	}
}

func (a *Adapter) argsFor(op engine.Operation) []string {
	switch op {
	case engine.OpPrune:
		// --list makes borg print a "Keeping archive" row per survivor,
		// which the textual freshness fallback scrapes.
		return append([]string{"prune", "--list"}, a.plan.Policy.BorgArgs()...)
	case engine.OpCompact:
		return []string{"compact"}
	case engine.OpCheck:
		return []string{"check"}
	case engine.OpList:
		return []string{"list", "--json"}
	default:
		return nil
	}
}

func (a *Adapter) env() []string {
	env := execrun.BaseEnv()
	env = append(env, "BORG_REPO="+a.plan.Repository)
	env = append(env, "BORG_PASSPHRASE="+a.plan.Passphrase)
	return env
}

// archiveListing mirrors the subset of borg's "list --json" output the
// audit needs.
type archiveListing struct {
	Archives []struct {
		Name  string `json:"name"`
		Start string `json:"start"`
	} `json:"archives"`
}

// borg emits archive timestamps in local time without a zone suffix.
const startLayout = "2006-01-02T15:04:05.000000"

// ParseSnapshotTimes extracts archive start times from a successful
// "list --json" result.
func (a *Adapter) ParseSnapshotTimes(res engine.Result) ([]time.Time, error) {
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("borg list exited with code %d", res.ExitCode)
	}
	raw := strings.TrimSpace(execrun.JoinOutput(res.Lines))
	if raw == "" {
		return nil, fmt.Errorf("borg list produced no output")
	}

	var listing archiveListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, fmt.Errorf("parse borg list output: %w", err)
	}

	times := make([]time.Time, 0, len(listing.Archives))
	for _, arch := range listing.Archives {
		ts, err := parseStart(arch.Start)
		if err != nil {
			return nil, fmt.Errorf("archive %q: %w", arch.Name, err)
		}
		times = append(times, ts)
	}
	return times, nil
}

func parseStart(s string) (time.Time, error) {
	if ts, err := time.ParseInLocation(startLayout, s, time.Local); err == nil {
		return ts, nil
	}
	// Some borg builds include a zone offset.
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
