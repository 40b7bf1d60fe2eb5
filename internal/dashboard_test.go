package multinodetop

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TerminalView renders only after Resize, so these run without a terminal
func TestTerminalViewSurfaces(t *testing.T) {
	v := NewTerminalView("dispatcher.lan:12456", testConfig())

	v.ShowSummary(Summary{ActiveTotal: 3, CapacityTotal: 8})
	if !strings.Contains(v.totals.Text, "Active CPUs: 3") || !strings.Contains(v.totals.Text, "Total CPUs:  8") {
		t.Errorf("unexpected totals %q", v.totals.Text)
	}

	v.Consume(&Snapshot{Workers: []WorkerStatus{
		{Name: "localhost", Type: "local", CPUCapacity: 4, CPUActive: 2, Processes: 2},
		{CPUCapacity: 8, CPUActive: 1},
	}}, 7)
	if len(v.workers.Rows) != 2 {
		t.Fatalf("expected 2 worker rows, got %d", len(v.workers.Rows))
	}
	if !strings.Contains(v.workers.Rows[0], "localhost") || !strings.Contains(v.workers.Rows[0], "2 procs") {
		t.Errorf("unexpected row %q", v.workers.Rows[0])
	}
	if !strings.Contains(v.status.Text, "round 7") {
		t.Errorf("expected round in status, got %q", v.status.Text)
	}

	v.SetStale(true, errors.New("connection refused"))
	if !strings.Contains(v.status.Text, "STALE (no data yet)") || !strings.Contains(v.status.Text, "connection refused") {
		t.Errorf("expected stale status, got %q", v.status.Text)
	}
	v.SetAgeFunc(func() (time.Duration, bool) { return 12 * time.Second, true })
	v.SetStale(true, errors.New("connection refused"))
	if !strings.Contains(v.status.Text, "last good data 12s ago") {
		t.Errorf("expected age in stale status, got %q", v.status.Text)
	}
	v.SetStale(false, nil)
	if strings.Contains(v.status.Text, "STALE") {
		t.Errorf("expected stale flag cleared, got %q", v.status.Text)
	}

	// shrinking worker list keeps the selection in range
	v.workers.SelectedRow = 1
	v.Consume(&Snapshot{Workers: []WorkerStatus{{CPUCapacity: 1}}}, 8)
	if v.workers.SelectedRow != 0 {
		t.Errorf("expected selection clamped to 0, got %d", v.workers.SelectedRow)
	}
}
