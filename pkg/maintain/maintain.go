// Package maintain drives the maintenance batch: it walks the target
// registry in order, runs both engines' operations per target, audits
// snapshot freshness, aggregates the verdict and hands it to the
// reporter. Targets are strictly sequential and isolated from each
// other; one target's failure never stops the rest of the batch.
package maintain

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/marcus0x62/backuptools/pkg/borg"
	"github.com/marcus0x62/backuptools/pkg/config"
	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
	"github.com/marcus0x62/backuptools/pkg/freshness"
	"github.com/marcus0x62/backuptools/pkg/hints"
	"github.com/marcus0x62/backuptools/pkg/plog"
	"github.com/marcus0x62/backuptools/pkg/report"
	"github.com/marcus0x62/backuptools/pkg/restic"
	"github.com/marcus0x62/backuptools/pkg/retention"
	"github.com/marcus0x62/backuptools/pkg/verdict"
)

// Process exit statuses for the scheduled job. The scheduler treats any
// non-zero exit as cause for operator notification.
const (
	// ExitOK means every enabled target ended NORMAL.
	ExitOK = 0
	// ExitTargetError means at least one target's verdict is ERROR.
	ExitTargetError = 1
	// ExitFatal means the run could not start or proceed at all, e.g. a
	// missing registry or a lock held by another run.
	ExitFatal = 2
	// ExitInterrupted means the batch was stopped by a signal.
	ExitInterrupted = 130
)

// Driver executes the batch for one loaded registry.
type Driver struct {
	cfg    config.Config
	out    io.Writer
	runner *execrun.Runner

	// adaptersFor builds the per-target engine adapters; replaced in tests.
	adaptersFor func(t *config.Target) []engine.Adapter
	// now pins the audit reference time in tests. Zero means time.Now.
	now time.Time
}

// New creates a Driver that invokes the real engine binaries and writes
// operator output to stdout.
func New(cfg config.Config) *Driver {
	d := &Driver{
		cfg:    cfg,
		out:    os.Stdout,
		runner: execrun.New(exec.CommandContext),
	}
	d.adaptersFor = d.buildAdapters
	return d
}

// buildAdapters assembles both engines' adapters for one target. Plans
// carry the target's credentials; they are rebuilt per target, so no
// credential outlives its target's run.
func (d *Driver) buildAdapters(t *config.Target) []engine.Adapter {
	timeout := time.Duration(d.cfg.Maintenance.OperationTimeoutSeconds) * time.Second
	return []engine.Adapter{
		borg.New(d.runner, borg.Plan{
			Binary:     d.cfg.Maintenance.BorgBinary,
			Repository: t.Borg.Repository,
			Passphrase: t.Borg.Passphrase,
			Policy:     retention.Default(),
			Timeout:    timeout,
		}),
		restic.New(d.runner, restic.Plan{
			Binary:      d.cfg.Maintenance.ResticBinary,
			Repository:  t.Restic.Repository,
			Password:    t.Restic.Password,
			SFTPCommand: t.Restic.SFTPCommand,
			Policy:      retention.Default(),
			Timeout:     timeout,
		}),
	}
}

// RunAll processes every enabled target in registry order and returns the
// process exit status. auditOnly restricts the run to the read-only
// freshness audit, skipping all destructive operations.
func (d *Driver) RunAll(ctx context.Context, auditOnly bool) int {
	anyError := false

	for i := range d.cfg.Targets {
		t := &d.cfg.Targets[i]
		if ctx.Err() != nil {
			plog.Warn("Maintenance interrupted, skipping remaining targets", "next", t.Name)
			return ExitInterrupted
		}
		if t.Disabled {
			plog.Info("Skipping disabled target", "target", t.Name)
			continue
		}

		v, interrupted := d.runTarget(ctx, t, auditOnly)
		if interrupted {
			return ExitInterrupted
		}
		if v.Status == verdict.StatusError {
			anyError = true
		}
	}

	if anyError {
		return ExitTargetError
	}
	return ExitOK
}

// runTarget executes the full maintenance sequence for one target. The
// returned bool reports an interruption; the partial verdict then no
// longer contributes to the batch status.
func (d *Driver) runTarget(ctx context.Context, t *config.Target, auditOnly bool) (verdict.RunVerdict, bool) {
	plog.Notice("Maintaining target", "target", t.Name, "audit_only", auditOnly)
	start := time.Now()

	rep := report.New(d.out, d.cfg.Verbose)
	rep.Record("=== target %s ===", t.Name)

	adapters := d.adaptersFor(t)
	var results []engine.Result

	if !auditOnly {
		for _, adapter := range adapters {
			for _, op := range adapter.Operations() {
				// Destructive operations must not start once a shutdown is
				// requested; an operation already running is killed through
				// its own context.
				if ctx.Err() != nil {
					rep.Record("run interrupted before %s %s", adapter.Engine(), op)
					plog.Warn("Target run interrupted", "target", t.Name)
					return verdict.RunVerdict{Target: t.Name}, true
				}

				rep.Record("%s %s starting", adapter.Engine(), op)
				res := adapter.Run(ctx, op, rep.Sink())
				rep.Record("%s %s finished: exit code %d (%s)",
					adapter.Engine(), res.Label, res.ExitCode, res.Duration.Truncate(time.Millisecond))
				results = append(results, res)
			}
		}
	}

	var counts []engine.AuditCount
	for _, adapter := range adapters {
		if ctx.Err() != nil {
			rep.Record("run interrupted before %s freshness audit", adapter.Engine())
			return verdict.RunVerdict{Target: t.Name}, true
		}
		auditor := freshness.Auditor{
			Days:   t.Freshness(),
			Marker: d.marker(adapter.Engine()),
			Now:    d.now,
		}
		count, err := auditor.Audit(ctx, adapter, engineLines(adapter.Engine(), results), rep.Sink())
		if err != nil {
			rep.Record("%s structured listing unavailable (%v), counted from maintenance output", adapter.Engine(), err)
			if hints.IsHint(err) {
				plog.Debug("Freshness audit fell back to output scrape", "target", t.Name, "engine", adapter.Engine().String())
			} else {
				plog.Warn("Freshness audit degraded", "target", t.Name, "engine", adapter.Engine().String(), "error", err)
			}
		}
		counts = append(counts, count)
	}

	v := verdict.Aggregate(t.Name, results, counts)
	rep.Report(v)

	plog.Notice("Target finished",
		"target", t.Name,
		"verdict", v.Status.String(),
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return v, false
}

func (d *Driver) marker(eng engine.Engine) string {
	if eng == engine.Borg {
		return d.cfg.Maintenance.BorgFreshnessMarker
	}
	return d.cfg.Maintenance.ResticFreshnessMarker
}

// engineLines collects one engine's combined maintenance output, the
// evidence source for the textual audit fallback.
func engineLines(eng engine.Engine, results []engine.Result) []string {
	var lines []string
	for _, res := range results {
		if res.Engine == eng {
			lines = append(lines, res.Lines...)
		}
	}
	return lines
}
