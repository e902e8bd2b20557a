// Package freshness answers one question per engine: how many snapshots
// were created within the recent window. The window is measured in local
// calendar days and is inclusive on both ends, so a window of N days
// covers today plus the N preceding days, and a window of zero days means
// "created today".
package freshness

import (
	"context"
	"strings"
	"time"

	"github.com/marcus0x62/backuptools/pkg/engine"
	"github.com/marcus0x62/backuptools/pkg/execrun"
	"github.com/marcus0x62/backuptools/pkg/hints"
)

// Count sources recorded on engine.AuditCount.
const (
	// SourceList means the count came from the engine's structured
	// snapshot listing.
	SourceList = "list"
	// SourceScrape means the listing was unavailable and the count was
	// scraped from the maintenance run's textual output.
	SourceScrape = "scrape"
)

// Auditor counts recent snapshots for one engine. Marker and the
// maintenance output are only consulted when the structured listing
// cannot be obtained or parsed.
type Auditor struct {
	// Days is the freshness window in local calendar days.
	Days int
	// Marker is the substring identifying a per-snapshot row in the
	// engine's maintenance output.
	Marker string
	// Now allows tests to pin the reference time. Zero means time.Now().
	Now time.Time
}

func (a Auditor) now() time.Time {
	if a.Now.IsZero() {
		return time.Now()
	}
	return a.Now
}

// Audit produces the freshness count for one engine. It prefers the
// structured listing; when that fails it falls back to scraping
// maintLines, the combined output of the target's maintenance run, and
// returns the listing error alongside the scraped count so the caller
// can log why the weaker source was used. sink receives the listing
// invocation's output.
func (a Auditor) Audit(ctx context.Context, adapter engine.Adapter, maintLines []string, sink execrun.LineSink) (engine.AuditCount, error) {
	count := engine.AuditCount{Engine: adapter.Engine()}

	res := adapter.Run(ctx, engine.OpList, sink)
	times, err := adapter.ParseSnapshotTimes(res)
	if err == nil {
		count.Count = CountRecent(times, a.Days, a.now())
		count.Source = SourceList
		return count, nil
	}

	// A failed listing is not itself a verdict condition; the scraped
	// count below still decides freshness. Mark the error as a hint so
	// callers log it as advisory, not as a run failure.
	count.Count = CountMarkers(maintLines, a.Marker, a.Days, a.now())
	count.Source = SourceScrape
	return count, hints.Wrap(err)
}

// CountRecent counts the times whose local calendar day falls within the
// window ending at now.
func CountRecent(times []time.Time, days int, now time.Time) int {
	today := startOfDay(now.Local())
	n := 0
	for _, t := range times {
		diff := daysBetween(startOfDay(t.Local()), today)
		if diff >= 0 && diff <= days {
			n++
		}
	}
	return n
}

// CountMarkers counts output lines that carry both the marker substring
// and a date within the window, formatted the way both engines print
// dates (2006-01-02). Each qualifying line is taken as one snapshot.
func CountMarkers(lines []string, marker string, days int, now time.Time) int {
	dates := windowDates(days, now)
	n := 0
	for _, line := range lines {
		if !strings.Contains(line, marker) {
			continue
		}
		for _, date := range dates {
			if strings.Contains(line, date) {
				n++
				break
			}
		}
	}
	return n
}

func windowDates(days int, now time.Time) []string {
	day := startOfDay(now.Local())
	dates := make([]string, 0, days+1)
	for i := 0; i <= days; i++ {
		dates = append(dates, day.AddDate(0, 0, -i).Format(time.DateOnly))
	}
	return dates
}

// startOfDay pins the local calendar date to UTC midnight so day
// arithmetic stays exact across DST transitions.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns how many calendar days later is than earlier.
// Negative when earlier is actually in the future.
func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier) / (24 * time.Hour))
}
