package multinodetop

import (
	"testing"
)

type recordingSummary struct {
	shown []Summary
}

func (r *recordingSummary) ShowSummary(s Summary) {
	r.shown = append(r.shown, s)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *Snapshot
		want     Summary
	}{
		{
			name:     "single worker",
			snapshot: snapshotOf(3, 8, 2),
			want:     Summary{ActiveTotal: 3, CapacityTotal: 8},
		},
		{
			name: "several workers",
			snapshot: &Snapshot{Workers: []WorkerStatus{
				{CPUCapacity: 4, CPUActive: 4},
				{CPUCapacity: 12, CPUActive: 1},
			}},
			want: Summary{ActiveTotal: 5, CapacityTotal: 16},
		},
		{
			name:     "no workers",
			snapshot: &Snapshot{WaitingTasks: 9},
			want:     Summary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.snapshot); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSummaryAggregatorConsume(t *testing.T) {
	surface := &recordingSummary{}
	a := NewSummaryAggregator(surface)

	a.Consume(snapshotOf(3, 8, 2), 0)
	a.Consume(snapshotOf(1, 8, 0), 1)

	if len(surface.shown) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(surface.shown))
	}
	if surface.shown[0] != (Summary{ActiveTotal: 3, CapacityTotal: 8}) {
		t.Errorf("unexpected first summary %+v", surface.shown[0])
	}
	if surface.shown[1] != (Summary{ActiveTotal: 1, CapacityTotal: 8}) {
		t.Errorf("unexpected second summary %+v", surface.shown[1])
	}
}

func TestSummaryAggregatorWithoutSurface(t *testing.T) {
	NewSummaryAggregator(nil).Consume(snapshotOf(1, 1, 1), 0)
}
