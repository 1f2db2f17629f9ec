package system

import (
	"testing"
	"time"
)

func TestNowIsUTCAndCurrent(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().Add(-time.Second)
	got := clk.Now()

	if got.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC", got.Location())
	}
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Fatalf("Now() = %v is not current", got)
	}
}

func TestNowOrdersSnapshotStamps(t *testing.T) {
	t.Parallel()

	clk := New()
	started := clk.Now()
	finished := clk.Now()
	if finished.Sub(started) < 0 {
		t.Fatalf("finished %v before started %v", finished, started)
	}
}
