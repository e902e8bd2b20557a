// Package retention defines the bucketed keep-counts applied uniformly to
// both repository engines during maintenance.
//
// The policy is global and fixed for all targets: destructive pruning must
// behave identically everywhere, so the counts are not target-configurable.
// Both engines classify snapshot age into hourly/daily/weekly/monthly/yearly
// buckets themselves; this package only renders the counts into each
// engine's command-line flags and must never alter them on the way through.
package retention

import "fmt"

// Policy holds the number of snapshots to keep per calendar bucket.
type Policy struct {
	Hours  int
	Days   int
	Weeks  int
	Months int
	Years  int
}

// Default returns the retention policy applied to every target:
// keep 24 hourly, 7 daily, 4 weekly, 12 monthly and 1 yearly snapshot.
func Default() Policy {
	return Policy{
		Hours:  24,
		Days:   7,
		Weeks:  4,
		Months: 12,
		Years:  1,
	}
}

// BorgArgs renders the policy as borg prune flags.
func (p Policy) BorgArgs() []string {
	return []string{
		fmt.Sprintf("--keep-hourly=%d", p.Hours),
		fmt.Sprintf("--keep-daily=%d", p.Days),
		fmt.Sprintf("--keep-weekly=%d", p.Weeks),
		fmt.Sprintf("--keep-monthly=%d", p.Months),
		fmt.Sprintf("--keep-yearly=%d", p.Years),
	}
}

// ResticArgs renders the policy as restic forget flags.
func (p Policy) ResticArgs() []string {
	return []string{
		fmt.Sprintf("--keep-hourly=%d", p.Hours),
		fmt.Sprintf("--keep-daily=%d", p.Days),
		fmt.Sprintf("--keep-weekly=%d", p.Weeks),
		fmt.Sprintf("--keep-monthly=%d", p.Months),
		fmt.Sprintf("--keep-yearly=%d", p.Years),
	}
}

// String summarizes the policy for log lines.
func (p Policy) String() string {
	return fmt.Sprintf("h:%d d:%d w:%d m:%d y:%d", p.Hours, p.Days, p.Weeks, p.Months, p.Years)
}
