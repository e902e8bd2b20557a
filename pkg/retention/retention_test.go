package retention

import (
	"slices"
	"testing"
)

func TestDefaultPolicyCounts(t *testing.T) {
	p := Default()
	if p.Hours != 24 || p.Days != 7 || p.Weeks != 4 || p.Months != 12 || p.Years != 1 {
		t.Errorf("unexpected default policy: %+v", p)
	}
}

func TestBorgArgs(t *testing.T) {
	got := Default().BorgArgs()
	want := []string{
		"--keep-hourly=24",
		"--keep-daily=7",
		"--keep-weekly=4",
		"--keep-monthly=12",
		"--keep-yearly=1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("BorgArgs() = %v, want %v", got, want)
	}
}

func TestResticArgs(t *testing.T) {
	got := Default().ResticArgs()
	want := []string{
		"--keep-hourly=24",
		"--keep-daily=7",
		"--keep-weekly=4",
		"--keep-monthly=12",
		"--keep-yearly=1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("ResticArgs() = %v, want %v", got, want)
	}
}

func TestString(t *testing.T) {
	if s := Default().String(); s != "h:24 d:7 w:4 m:12 y:1" {
		t.Errorf("unexpected summary: %q", s)
	}
}
