package restic

import (
	"time"

	"github.com/marcus0x62/backuptools/pkg/retention"
)

// Plan holds everything one restic adapter needs to maintain one target's
// repository. Built by the driver per target; the credential inside lives
// only as long as the target's run.
type Plan struct {
	// Binary is the restic executable name or path.
	Binary string
	// Repository is injected as RESTIC_REPOSITORY.
	Repository string
	// Password is injected as RESTIC_PASSWORD, never as an argument.
	Password string
	// SFTPCommand, when set, is passed as "-o sftp.command=..." so a
	// target can pin its transport invocation.
	SFTPCommand string
	// Policy is rendered into the forget flags verbatim.
	Policy retention.Policy
	// Timeout bounds each individual operation. Zero disables it.
	Timeout time.Duration
}
