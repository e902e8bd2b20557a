//go:build windows

package execrun

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// setupProcessGroup creates a new process group so that cancellation
// terminates the entire process tree, not just the engine binary itself.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
