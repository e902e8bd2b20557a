//go:build !windows

package execrun

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"
)

// shSpec builds a Spec that runs a shell snippet, which keeps these tests
// independent of any real backup engine being installed.
func shSpec(script string) Spec {
	return Spec{
		Binary: "/bin/sh",
		Args:   []string{"-c", script},
		Env:    BaseEnv(),
	}
}

func TestRunCapturesOutputAndZeroExit(t *testing.T) {
	r := New(exec.CommandContext)
	res := r.Run(context.Background(), shSpec("echo one; echo two 1>&2; echo three"), nil)

	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0 (output: %v)", res.ExitCode, res.Lines)
	}
	if res.TimedOut || res.StartFailed {
		t.Errorf("unexpected synthetic flags: %+v", res)
	}
	for _, want := range []string{"one", "two", "three"} {
		if !slices.Contains(res.Lines, want) {
			t.Errorf("combined output %v missing line %q", res.Lines, want)
		}
	}
	// stdout ordering is preserved relative to itself.
	if slices.Index(res.Lines, "one") > slices.Index(res.Lines, "three") {
		t.Errorf("stdout lines out of order: %v", res.Lines)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := New(exec.CommandContext)
	res := r.Run(context.Background(), shSpec("echo failing; exit 2"), nil)

	if res.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2", res.ExitCode)
	}
	if res.StartFailed {
		t.Error("a process that ran and exited must not be marked StartFailed")
	}
	if !slices.Contains(res.Lines, "failing") {
		t.Errorf("output lost on non-zero exit: %v", res.Lines)
	}
}

func TestRunStartFailure(t *testing.T) {
	r := New(exec.CommandContext)
	res := r.Run(context.Background(), Spec{
		Binary: "/nonexistent/backup-engine",
		Env:    BaseEnv(),
	}, nil)

	if res.ExitCode != ExitStartFailure {
		t.Errorf("exit code = %d, want synthetic %d", res.ExitCode, ExitStartFailure)
	}
	if !res.StartFailed {
		t.Error("expected StartFailed to be set")
	}
	if len(res.Lines) == 0 || !strings.Contains(res.Lines[0], "failed to start") {
		t.Errorf("expected a descriptive line, got %v", res.Lines)
	}
}

func TestRunTimeout(t *testing.T) {
	r := New(exec.CommandContext)
	spec := shSpec("echo started; sleep 30")
	spec.Timeout = 200 * time.Millisecond

	start := time.Now()
	res := r.Run(context.Background(), spec, nil)
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout did not take effect, run lasted %s", elapsed)
	}

	if res.ExitCode != ExitTimeout {
		t.Errorf("exit code = %d, want synthetic %d", res.ExitCode, ExitTimeout)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	if !slices.Contains(res.Lines, "started") {
		t.Errorf("output before the timeout was lost: %v", res.Lines)
	}
}

func TestRunSinkSeesEveryLine(t *testing.T) {
	r := New(exec.CommandContext)
	var mirrored []string
	res := r.Run(context.Background(), shSpec("echo a; echo b"), func(line string) {
		mirrored = append(mirrored, line)
	})

	if !slices.Equal(mirrored, res.Lines) {
		t.Errorf("sink saw %v, result has %v", mirrored, res.Lines)
	}
}

func TestBaseEnvOnlyForwardsPlumbing(t *testing.T) {
	t.Setenv("BORG_PASSPHRASE", "leaky")
	t.Setenv("RESTIC_PASSWORD", "leaky")

	for _, entry := range BaseEnv() {
		key, _, _ := strings.Cut(entry, "=")
		switch key {
		case "PATH", "HOME", "USER", "LANG", "TMPDIR", "SSH_AUTH_SOCK":
		default:
			t.Errorf("BaseEnv forwarded unexpected variable %q", key)
		}
	}
}
