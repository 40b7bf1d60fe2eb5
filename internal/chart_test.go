package multinodetop

import (
	"image"
	"strings"
	"testing"

	ui "github.com/gizak/termui/v3"
)

func drawChart(t *testing.T, series []SeriesView, opts ChartOptions) *ui.Buffer {
	t.Helper()
	chart := NewSeriesChart(RETENTION_WINDOW)
	chart.SetRect(0, 0, 60, 20)
	chart.SetSeries(series, opts)
	buf := ui.NewBuffer(chart.GetRect())
	chart.Draw(buf)
	return buf
}

func rowText(buf *ui.Buffer, y int) string {
	var b strings.Builder
	for x := buf.Min.X; x < buf.Max.X; x++ {
		b.WriteRune(buf.GetCell(image.Pt(x, y)).Rune)
	}
	return b.String()
}

func seriesWith(n int, value func(i int) float64) []SeriesView {
	b := NewSeriesBuffer(RETENTION_WINDOW, nil)
	for i := range n {
		v := int(value(i))
		b.Update(snapshotOf(v, 2*v, v/2), i)
	}
	return b.Series()
}

func TestSeriesChartWaiting(t *testing.T) {
	buf := drawChart(t, nil, DefaultChartOptions)
	if !strings.Contains(rowText(buf, 1), "Waiting for data") {
		t.Errorf("expected placeholder, got %q", rowText(buf, 1))
	}
}

func TestSeriesChartDraws(t *testing.T) {
	tests := []struct {
		name   string
		series []SeriesView
		opts   ChartOptions
	}{
		{"one point", seriesWith(1, func(int) float64 { return 3 }), DefaultChartOptions},
		{"two points", seriesWith(2, func(i int) float64 { return float64(i) }), DefaultChartOptions},
		{"full window", seriesWith(15, func(i int) float64 { return float64(i % 5) }), DefaultChartOptions},
		{"all zero", seriesWith(5, func(int) float64 { return 0 }), DefaultChartOptions},
		{"lines only", seriesWith(5, func(i int) float64 { return float64(i) }), ChartOptions{ShowLines: true}},
		{"nothing selected", seriesWith(5, func(i int) float64 { return float64(i) }), ChartOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := drawChart(t, tt.series, tt.opts)
			top := rowText(buf, 0)
			if !strings.Contains(top, "rounds") {
				t.Errorf("expected round range in title, got %q", top)
			}
			if !strings.Contains(top, SERIES_USAGE) {
				t.Errorf("expected legend in top edge, got %q", top)
			}
		})
	}
}
