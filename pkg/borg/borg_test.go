//go:build !windows

package borg

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
	"github.com/marcus0x62/backuptools/pkg/retention"
)

// fakeEngine records the command line it was asked to run and substitutes
// a shell script for the real binary.
type fakeEngine struct {
	script string
	name   string
	args   []string
}

func (f *fakeEngine) adapter(t *testing.T, plan Plan) *Adapter {
	t.Helper()
	runner := execrun.New(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		f.name = name
		f.args = arg
		return exec.CommandContext(ctx, "/bin/sh", "-c", f.script)
	})
	return New(runner, plan)
}

func testPlan() Plan {
	return Plan{
		Binary:     "borg",
		Repository: "ssh://backup@vault/./repo",
		Passphrase: "hunter2",
		Policy:     retention.Default(),
		Timeout:    time.Minute,
	}
}

func TestOperationsOrder(t *testing.T) {
	a := New(nil, testPlan())
	want := []engine.Operation{engine.OpPrune, engine.OpCompact, engine.OpCheck}
	if got := a.Operations(); !slices.Equal(got, want) {
		t.Fatalf("Operations() = %v, want %v", got, want)
	}
	if a.Engine() != engine.Borg {
		t.Fatalf("Engine() = %v, want %v", a.Engine(), engine.Borg)
	}
}

func TestRunPruneCommandLine(t *testing.T) {
	fake := &fakeEngine{script: "exit 0"}
	a := fake.adapter(t, testPlan())

	res := a.Run(context.Background(), engine.OpPrune, nil)
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if fake.name != "borg" {
		t.Fatalf("binary = %q, want borg", fake.name)
	}
	want := []string{
		"prune", "--list",
		"--keep-hourly=24", "--keep-daily=7", "--keep-weekly=4",
		"--keep-monthly=12", "--keep-yearly=1",
	}
	if !slices.Equal(fake.args, want) {
		t.Fatalf("args = %v, want %v", fake.args, want)
	}
	for _, arg := range fake.args {
		if strings.Contains(arg, "hunter2") {
			t.Fatalf("passphrase leaked into arguments: %v", fake.args)
		}
	}
}

func TestRunCompactAndCheckArgs(t *testing.T) {
	tests := []struct {
		op   engine.Operation
		want []string
	}{
		{engine.OpCompact, []string{"compact"}},
		{engine.OpCheck, []string{"check"}},
		{engine.OpList, []string{"list", "--json"}},
	}
	for _, tc := range tests {
		fake := &fakeEngine{script: "exit 0"}
		a := fake.adapter(t, testPlan())
		a.Run(context.Background(), tc.op, nil)
		if !slices.Equal(fake.args, tc.want) {
			t.Fatalf("%s args = %v, want %v", tc.op, fake.args, tc.want)
		}
	}
}

func TestEnvCarriesCredentials(t *testing.T) {
	a := New(nil, testPlan())
	env := a.env()
	if !slices.Contains(env, "BORG_REPO=ssh://backup@vault/./repo") {
		t.Fatalf("BORG_REPO missing from env: %v", env)
	}
	if !slices.Contains(env, "BORG_PASSPHRASE=hunter2") {
		t.Fatalf("BORG_PASSPHRASE missing from env: %v", env)
	}
}

func TestRunNonZeroExitPreserved(t *testing.T) {
	fake := &fakeEngine{script: "echo 'Data integrity error'; exit 2"}
	a := fake.adapter(t, testPlan())

	res := a.Run(context.Background(), engine.OpCheck, nil)
	if res.ExitCode != 2 {
		t.Fatalf("ExitCode = %d, want 2", res.ExitCode)
	}
	if res.Operation != engine.OpCheck || res.Label != "check" {
		t.Fatalf("result identity = %v/%q", res.Operation, res.Label)
	}
	if !slices.Contains(res.Lines, "Data integrity error") {
		t.Fatalf("output not captured: %v", res.Lines)
	}
}

func TestParseSnapshotTimes(t *testing.T) {
	listing := `{
		"archives": [
			{"name": "host-2026-08-28", "start": "2026-08-28T01:00:05.000000"},
			{"name": "host-2026-08-29", "start": "2026-08-29T01:00:02.000000"}
		],
		"repository": {"id": "abc"}
	}`
	res := engine.Result{
		Engine:    engine.Borg,
		Operation: engine.OpList,
		ExitCode:  0,
		Lines:     strings.Split(listing, "\n"),
	}
	a := New(nil, testPlan())
	times, err := a.ParseSnapshotTimes(res)
	if err != nil {
		t.Fatalf("ParseSnapshotTimes: %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("got %d times, want 2", len(times))
	}
	want := time.Date(2026, 8, 29, 1, 0, 2, 0, time.Local)
	if !times[1].Equal(want) {
		t.Fatalf("times[1] = %v, want %v", times[1], want)
	}
}

func TestParseSnapshotTimesZoneSuffix(t *testing.T) {
	res := engine.Result{
		ExitCode: 0,
		Lines:    []string{`{"archives":[{"name":"a","start":"2026-08-29T01:00:02.000000+02:00"}]}`},
	}
	a := New(nil, testPlan())
	times, err := a.ParseSnapshotTimes(res)
	if err != nil {
		t.Fatalf("ParseSnapshotTimes: %v", err)
	}
	if len(times) != 1 {
		t.Fatalf("got %d times, want 1", len(times))
	}
}

func TestParseSnapshotTimesRejectsFailure(t *testing.T) {
	a := New(nil, testPlan())
	if _, err := a.ParseSnapshotTimes(engine.Result{ExitCode: 2}); err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if _, err := a.ParseSnapshotTimes(engine.Result{ExitCode: 0}); err == nil {
		t.Fatal("expected error for empty output")
	}
	bad := engine.Result{ExitCode: 0, Lines: []string{`{"archives":[{"name":"a","start":"yesterday"}]}`}}
	if _, err := a.ParseSnapshotTimes(bad); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}
