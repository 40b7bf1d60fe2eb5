package multinodetop

import (
	"sync"
)

// Names of the tracked series, in draw order
const (
	SERIES_USAGE    = "Usage"
	SERIES_CAPACITY = "Capacity"
	SERIES_WAITING  = "Waiting Tasks"
)

// SeriesPoint is one sample. Index is the shared round counter, so points with
// the same index in different series come from the same snapshot.
type SeriesPoint struct {
	Index int
	Value float64
}

// RollingSeries keeps at most window points, oldest first
type RollingSeries struct {
	name   string
	window int
	points []SeriesPoint
}

func NewRollingSeries(name string, window int) *RollingSeries {
	if window < 1 {
		window = RETENTION_WINDOW
	}
	return &RollingSeries{
		name:   name,
		window: window,
		points: make([]SeriesPoint, 0, window),
	}
}

func (s *RollingSeries) Name() string { return s.name }

func (s *RollingSeries) Window() int { return s.window }

func (s *RollingSeries) Len() int { return len(s.points) }

// Append evicts the oldest point when the series is full, then adds p
func (s *RollingSeries) Append(p SeriesPoint) {
	if len(s.points) >= s.window {
		// shift in place so the backing array never grows past window
		copy(s.points, s.points[1:])
		s.points = s.points[:len(s.points)-1]
	}
	s.points = append(s.points, p)
}

// Points returns a copy of the retained points
func (s *RollingSeries) Points() []SeriesPoint {
	out := make([]SeriesPoint, len(s.points))
	copy(out, s.points)
	return out
}

// SeriesView is a detached copy of one series handed to a chart surface
type SeriesView struct {
	Name   string
	Points []SeriesPoint
}

// Values returns the point values in order
func (v SeriesView) Values() []float64 {
	values := make([]float64, len(v.Points))
	for i, p := range v.Points {
		values[i] = p.Value
	}
	return values
}

// ChartOptions are the fixed display options passed with every redraw
type ChartOptions struct {
	ShowLines    bool
	ShowPoints   bool
	IntegerTicks bool
}

// DefaultChartOptions draws connecting lines and point markers with integer x ticks
var DefaultChartOptions = ChartOptions{
	ShowLines:    true,
	ShowPoints:   true,
	IntegerTicks: true,
}

// ChartSurface draws the full current contents of all series
type ChartSurface interface {
	DrawChart(series []SeriesView, opts ChartOptions)
}

// SeriesBuffer derives usage, capacity and waiting-task points from each
// snapshot. All three series share one window so they always have equal
// length and aligned indices.
type SeriesBuffer struct {
	mu       sync.Mutex
	usage    *RollingSeries
	capacity *RollingSeries
	waiting  *RollingSeries
	surface  ChartSurface
	opts     ChartOptions
}

// NewSeriesBuffer creates a buffer. surface may be nil.
func NewSeriesBuffer(window int, surface ChartSurface) *SeriesBuffer {
	return &SeriesBuffer{
		usage:    NewRollingSeries(SERIES_USAGE, window),
		capacity: NewRollingSeries(SERIES_CAPACITY, window),
		waiting:  NewRollingSeries(SERIES_WAITING, window),
		surface:  surface,
		opts:     DefaultChartOptions,
	}
}

// Update appends the points derived from snapshot at index and redraws
func (b *SeriesBuffer) Update(snapshot *Snapshot, index int) {
	active, capacity := snapshot.Totals()

	b.mu.Lock()
	b.usage.Append(SeriesPoint{Index: index, Value: float64(active)})
	b.capacity.Append(SeriesPoint{Index: index, Value: float64(capacity)})
	b.waiting.Append(SeriesPoint{Index: index, Value: float64(snapshot.WaitingTasks)})
	views := b.views()
	b.mu.Unlock()

	if b.surface != nil {
		b.surface.DrawChart(views, b.opts)
	}
}

// Consume implements Consumer
func (b *SeriesBuffer) Consume(snapshot *Snapshot, index int) {
	b.Update(snapshot, index)
}

// Series returns copies of the three series in draw order
func (b *SeriesBuffer) Series() []SeriesView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.views()
}

func (b *SeriesBuffer) views() []SeriesView {
	return []SeriesView{
		{Name: b.usage.Name(), Points: b.usage.Points()},
		{Name: b.capacity.Name(), Points: b.capacity.Points()},
		{Name: b.waiting.Name(), Points: b.waiting.Points()},
	}
}
