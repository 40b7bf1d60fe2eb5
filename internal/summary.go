package multinodetop

// Summary holds the instantaneous CPU totals of one snapshot
type Summary struct {
	ActiveTotal   int
	CapacityTotal int
}

// Summarize totals active and available CPU slots over all workers
func Summarize(snapshot *Snapshot) Summary {
	active, capacity := snapshot.Totals()
	return Summary{
		ActiveTotal:   active,
		CapacityTotal: capacity,
	}
}

// SummarySurface shows the "active CPUs" and "total CPUs" numbers
type SummarySurface interface {
	ShowSummary(summary Summary)
}

// SummaryAggregator is the consumer that refreshes the summary surface.
// It keeps nothing between rounds.
type SummaryAggregator struct {
	surface SummarySurface
}

func NewSummaryAggregator(surface SummarySurface) *SummaryAggregator {
	return &SummaryAggregator{surface: surface}
}

// Consume implements Consumer
func (a *SummaryAggregator) Consume(snapshot *Snapshot, _ int) {
	summary := Summarize(snapshot)
	if a.surface != nil {
		a.surface.ShowSummary(summary)
	}
}
