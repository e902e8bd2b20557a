//go:build !windows

package execrun

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// setupProcessGroup puts the engine process into its own process group
// (PGRP) and registers a cancel handler that signals the whole group. Borg
// and restic both fork transport helpers (ssh, sftp); when an operation
// times out or the run is interrupted, those children must die with their
// parent or the remote repository stays locked.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
