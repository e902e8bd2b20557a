// Package execrun invokes external repository engines and captures their
// outcome as data instead of control flow.
//
// A non-zero exit is a normal, expected result here: retention and check
// commands routinely fail for reasons the verdict layer must aggregate, so
// Run never returns an error for it. Conditions where the engine produced
// no exit code of its own (binary missing, unreachable transport, timeout)
// are mapped to synthetic exit codes and flow through the same path.
package execrun

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// ExitStartFailure is the synthetic exit code recorded when the engine
	// process could not be started at all.
	ExitStartFailure = 127
	// ExitTimeout is the synthetic exit code recorded when an operation
	// exceeded its per-operation deadline and was killed.
	ExitTimeout = 124
)

// CommandContext matches exec.CommandContext and allows substituting a fake
// during tests.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Spec describes a single engine invocation.
type Spec struct {
	Binary string
	Args   []string
	// Env is the complete environment for the invocation. Credentials are
	// injected here, never through Args, so they stay out of process
	// listings. The caller builds a fresh Env per call; nothing is stored
	// process-wide between targets.
	Env []string
	// Timeout bounds the invocation. Zero means no deadline.
	Timeout time.Duration
}

// Result is the captured outcome of one invocation.
type Result struct {
	ExitCode int
	// Lines is the combined stdout/stderr output, in arrival order.
	Lines []string
	// TimedOut and StartFailed explain a synthetic ExitCode.
	TimedOut    bool
	StartFailed bool
}

// LineSink receives each output line as it is produced, before the result
// is returned. Used by the reporter to buffer (and optionally mirror) the
// engine's output live.
type LineSink func(line string)

// Runner executes Specs. The zero value is not usable; construct with New.
type Runner struct {
	commandContext CommandContext
}

// New creates a Runner. Pass exec.CommandContext for production use.
func New(commandContext CommandContext) *Runner {
	return &Runner{commandContext: commandContext}
}

// Run invokes the given Spec and captures its exit code and combined
// output. It blocks until the process exits, the Spec's timeout fires, or ctx is
// canceled; in the latter two cases the process group is killed and a
// synthetic exit code is recorded. sink may be nil.
func (r *Runner) Run(ctx context.Context, spec Spec, sink LineSink) Result {
	if sink == nil {
		sink = func(string) {}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := r.commandContext(runCtx, spec.Binary, spec.Args...)
	cmd.Env = spec.Env
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return startFailure(sink, fmt.Sprintf("failed to open stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return startFailure(sink, fmt.Sprintf("failed to open stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return startFailure(sink, fmt.Sprintf("failed to start %s: %v", spec.Binary, err))
	}

	// Both pipes are drained concurrently into one ordered stream; the
	// process can interleave them arbitrarily and must never block on a
	// full pipe while we read the other one.
	linesCh := make(chan string, 64)
	scanInto := func(r io.Reader) func() error {
		return func() error {
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				linesCh <- scanner.Text()
			}
			return scanner.Err()
		}
	}
	var g errgroup.Group
	g.Go(scanInto(stdout))
	g.Go(scanInto(stderr))
	go func() {
		// Scanner errors only mean truncated capture; the exit code below
		// still decides the verdict.
		if err := g.Wait(); err != nil {
			linesCh <- fmt.Sprintf("[backup-maint] output capture truncated: %v", err)
		}
		close(linesCh)
	}()

	var lines []string
	for line := range linesCh {
		lines = append(lines, line)
		sink(line)
	}

	waitErr := cmd.Wait()

	res := Result{Lines: lines}
	switch {
	case spec.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		res.ExitCode = ExitTimeout
		res.TimedOut = true
		timeoutLine := fmt.Sprintf("[backup-maint] operation killed after timeout of %s", spec.Timeout)
		res.Lines = append(res.Lines, timeoutLine)
		sink(timeoutLine)
	case waitErr == nil:
		res.ExitCode = 0
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Wait itself failed (I/O trouble, signal delivery); treat it
			// like a start failure so it aggregates as an error.
			res.ExitCode = ExitStartFailure
			res.StartFailed = true
		}
	}
	return res
}

func startFailure(sink LineSink, line string) Result {
	sink(line)
	return Result{
		ExitCode:    ExitStartFailure,
		Lines:       []string{line},
		StartFailed: true,
	}
}

// BaseEnv returns the minimal environment passed to every engine
// invocation alongside the per-call credentials. Only plumbing variables
// are forwarded from the maintenance host; everything else is dropped so
// stale credentials can never leak between targets.
func BaseEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME", "USER", "LANG", "TMPDIR", "SSH_AUTH_SOCK"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// JoinOutput renders captured lines for error messages and logs.
func JoinOutput(lines []string) string {
	return strings.Join(lines, "\n")
}
