package verdict

import (
	"strings"
	"testing"

	"github.com/marcus0x62/backuptools/pkg/engine"
)

func boolExit(fail bool) int {
	if fail {
		return 2
	}
	return 0
}

func boolCount(fail bool) int {
	if fail {
		return 0
	}
	return 3
}

// buildRun constructs a full result set where each of the six failure
// conditions is toggled independently.
func buildRun(borgPrune, borgCompact, resticPrune, resticCheck, borgStale, resticStale bool) ([]engine.Result, []engine.AuditCount) {
	results := []engine.Result{
		{Engine: engine.Borg, Operation: engine.OpPrune, Label: "prune", ExitCode: boolExit(borgPrune)},
		{Engine: engine.Borg, Operation: engine.OpCompact, Label: "compact", ExitCode: boolExit(borgCompact)},
		{Engine: engine.Borg, Operation: engine.OpCheck, Label: "check", ExitCode: 0},
		{Engine: engine.Restic, Operation: engine.OpPrune, Label: "forget/prune", ExitCode: boolExit(resticPrune)},
		{Engine: engine.Restic, Operation: engine.OpCheck, Label: "check", ExitCode: boolExit(resticCheck)},
	}
	counts := []engine.AuditCount{
		{Engine: engine.Borg, Count: boolCount(borgStale)},
		{Engine: engine.Restic, Count: boolCount(resticStale)},
	}
	return results, counts
}

// TestAggregateAllCombinations exercises every combination of the six
// failure conditions: the verdict must be ERROR iff at least one holds.
func TestAggregateAllCombinations(t *testing.T) {
	for mask := 0; mask < 1<<6; mask++ {
		bit := func(i int) bool { return mask&(1<<i) != 0 }
		results, counts := buildRun(bit(0), bit(1), bit(2), bit(3), bit(4), bit(5))

		v := Aggregate("db01", results, counts)
		wantError := mask != 0
		if (v.Status == StatusError) != wantError {
			t.Fatalf("mask %06b: status = %v, want error=%v", mask, v.Status, wantError)
		}
		if wantError && len(v.Reasons) == 0 {
			t.Fatalf("mask %06b: ERROR verdict without reasons", mask)
		}
		if !wantError && len(v.Reasons) != 0 {
			t.Fatalf("mask %06b: NORMAL verdict with reasons %v", mask, v.Reasons)
		}
	}
}

func TestBorgCheckFailureIsNotAnError(t *testing.T) {
	results, counts := buildRun(false, false, false, false, false, false)
	for i := range results {
		if results[i].Engine == engine.Borg && results[i].Operation == engine.OpCheck {
			results[i].ExitCode = 2
		}
	}
	v := Aggregate("db01", results, counts)
	if v.Status != StatusNormal {
		t.Fatalf("borg check exit 2 flipped verdict to %v, reasons %v", v.Status, v.Reasons)
	}
}

func TestResticCheckReasonFormat(t *testing.T) {
	results, counts := buildRun(false, false, false, true, false, false)
	v := Aggregate("db01", results, counts)
	if v.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", v.Status)
	}
	want := "Restic exit codes: forget/prune: 0 check: 2"
	found := false
	for _, r := range v.Reasons {
		if r == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("reasons %v missing %q", v.Reasons, want)
	}
}

func TestFreshnessReason(t *testing.T) {
	results, counts := buildRun(false, false, false, false, true, true)
	v := Aggregate("web02", results, counts)
	if v.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", v.Status)
	}
	if len(v.Reasons) != 2 {
		t.Fatalf("reasons = %v, want one per stale engine", v.Reasons)
	}
	for _, r := range v.Reasons {
		if !strings.Contains(r, "recent snapshots: 0") {
			t.Fatalf("unexpected reason %q", r)
		}
	}
}

func TestExitCodeLine(t *testing.T) {
	results, _ := buildRun(true, false, false, false, false, false)
	got := ExitCodeLine(engine.Borg, results)
	want := "Borg exit codes: prune: 2 compact: 0 check: 0"
	if got != want {
		t.Fatalf("ExitCodeLine = %q, want %q", got, want)
	}
}

func TestStatusString(t *testing.T) {
	if StatusNormal.String() != "NORMAL" || StatusError.String() != "ERROR" {
		t.Fatal("verdict status strings changed")
	}
}
