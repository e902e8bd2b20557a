package borg

import (
	"time"

	"github.com/marcus0x62/backuptools/pkg/retention"
)

// Plan holds everything one borg adapter needs to maintain one target's
// repository. Built by the driver per target; the credential inside lives
// only as long as the target's run.
type Plan struct {
	// Binary is the borg executable name or path.
	Binary string
	// Repository is the repository URL, injected as BORG_REPO.
	Repository string
	// Passphrase is injected as BORG_PASSPHRASE, never as an argument.
	Passphrase string
	// Policy is rendered into the prune flags verbatim.
	Policy retention.Policy
	// Timeout bounds each individual operation. Zero disables it.
	Timeout time.Duration
}
