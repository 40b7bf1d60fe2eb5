package multinodetop

import (
	"fmt"
	"image"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// termui reserves this many columns left of the plot area for y labels
const plotYAxisWidth = 5

// SeriesChart draws the rolling series as braille lines with dot markers on
// top. termui's Plot draws either lines or dots, so the chart stacks two
// plots over the same rectangle with a shared scale.
type SeriesChart struct {
	ui.Block
	window int
	series []SeriesView
	opts   ChartOptions
	colors []ui.Color
	lines  *widgets.Plot
	points *widgets.Plot
}

func NewSeriesChart(window int) *SeriesChart {
	colors := []ui.Color{ui.ColorCyan, ui.ColorYellow, ui.ColorMagenta}
	c := &SeriesChart{
		Block:  *ui.NewBlock(),
		window: window,
		opts:   DefaultChartOptions,
		colors: colors,
		lines:  newPlotLayer(widgets.MarkerBraille, colors),
		points: newPlotLayer(widgets.MarkerDot, colors),
	}
	c.Title = "Load"
	c.TitleStyle = ui.NewStyle(ui.ColorWhite, ui.ColorClear, ui.ModifierBold)
	return c
}

func newPlotLayer(marker widgets.PlotMarker, colors []ui.Color) *widgets.Plot {
	p := widgets.NewPlot()
	p.Border = false
	p.PlotType = widgets.LineChart
	p.Marker = marker
	p.DotMarkerRune = '●'
	p.ShowAxes = true
	p.AxesColor = ui.ColorWhite
	p.LineColors = colors
	return p
}

// SetSeries replaces the data drawn on the next render
func (c *SeriesChart) SetSeries(series []SeriesView, opts ChartOptions) {
	c.Lock()
	defer c.Unlock()
	c.series = series
	c.opts = opts
}

func (c *SeriesChart) Draw(buf *ui.Buffer) {
	n := 0
	if len(c.series) > 0 {
		n = len(c.series[0].Points)
	}
	if n > 0 {
		first, last := c.series[0].Points[0].Index, c.series[0].Points[n-1].Index
		c.Title = fmt.Sprintf("Load (rounds %d-%d)", first, last)
	}
	c.Block.Draw(buf)
	if n == 0 {
		buf.SetString("Waiting for data...", ui.NewStyle(ui.ColorWhite), c.Inner.Min)
		return
	}

	data := make([][]float64, len(c.series))
	maxVal := 1.0
	for i, s := range c.series {
		data[i] = s.Values()
		for _, v := range data[i] {
			maxVal = max(maxVal, v)
		}
	}

	// spread a full window across the plot so the x scale stays put while filling
	span := max(c.window, n)
	scale := 1
	if plotWidth := c.Inner.Dx() - plotYAxisWidth; span > 1 && plotWidth > span {
		scale = (plotWidth - 1) / (span - 1)
	}

	var layers []*widgets.Plot
	if c.opts.ShowLines && n > 1 {
		layers = append(layers, c.lines)
	}
	if c.opts.ShowPoints || len(layers) == 0 {
		layers = append(layers, c.points)
	}
	for _, layer := range layers {
		layer.Data = data
		layer.MaxVal = maxVal
		layer.HorizontalScale = scale
		layer.SetRect(c.Min.X, c.Min.Y, c.Max.X, c.Max.Y)
		layer.Draw(buf)
	}

	c.drawLegend(buf)
}

// drawLegend writes the series names in their line colours along the top edge
func (c *SeriesChart) drawLegend(buf *ui.Buffer) {
	x := c.Inner.Max.X
	for i := len(c.series) - 1; i >= 0; i-- {
		label := " " + c.series[i].Name + " "
		x -= len([]rune(label))
		if x <= c.Inner.Min.X {
			return
		}
		buf.SetString(label, ui.NewStyle(ui.SelectColor(c.colors, i)), image.Pt(x, c.Min.Y))
	}
}
