// Command backup-maint prunes, compacts and checks every registered
// target's borg and restic repositories, audits snapshot freshness, and
// reports per-target verdicts. It is meant to run from a scheduler on
// the trusted maintenance host; the exit status tells the scheduler
// whether operator attention is needed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/marcus0x62/backuptools/pkg/buildinfo"
	"github.com/marcus0x62/backuptools/pkg/config"
	"github.com/marcus0x62/backuptools/pkg/flagparse"
	"github.com/marcus0x62/backuptools/pkg/lockfile"
	"github.com/marcus0x62/backuptools/pkg/maintain"
	"github.com/marcus0x62/backuptools/pkg/plog"
)

// runBatch loads the registry, takes the run-overlap lock and executes
// the batch. auditOnly restricts the run to the read-only freshness
// audit.
func runBatch(ctx context.Context, opts flagparse.Options, auditOnly bool) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		plog.Error("Failed to load target registry", "error", err)
		return maintain.ExitFatal
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	plog.SetLevel(plog.LevelFromString(cfg.LogLevel))
	cfg.Verbose = opts.Verbose
	cfg.LogSummary()

	// Prune and compact are destructive; two runs must never overlap on
	// the same registry.
	lock, err := lockfile.Acquire(ctx, cfg.EffectiveLockPath(), buildinfo.Name)
	if err != nil {
		var active *lockfile.ErrActive
		if errors.As(err, &active) {
			err = fmt.Errorf("%w; wait for it to finish, or remove the lock file if its process is gone", err)
		}
		plog.Error("Could not acquire maintenance lock", "path", cfg.EffectiveLockPath(), "error", err)
		return maintain.ExitFatal
	}
	defer lock.Release()

	return maintain.New(cfg).RunAll(ctx, auditOnly)
}

func run(ctx context.Context) int {
	command, opts, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		plog.Error("Invalid command line", "error", err)
		return maintain.ExitFatal
	}

	switch command {
	case flagparse.None:
		// Help was printed.
		return maintain.ExitOK
	case flagparse.Version:
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
		return maintain.ExitOK
	case flagparse.Init:
		if err := config.Generate(opts.ConfigPath, opts.Force); err != nil {
			plog.Error("Failed to generate registry file", "error", err)
			return maintain.ExitFatal
		}
		return maintain.ExitOK
	case flagparse.Maintain:
		return runBatch(ctx, opts, false)
	case flagparse.Audit:
		return runBatch(ctx, opts, true)
	default:
		plog.Error("Internal error: unhandled command", "command", command.String())
		return maintain.ExitFatal
	}
}

func main() {
	// A single interrupt requests a clean stop: the running engine
	// operation is killed and no further destructive operation starts.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
	status := run(ctx)
	stop()
	os.Exit(status)
}
