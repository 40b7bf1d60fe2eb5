package multinodetop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// TerminalView is the interactive termui dashboard. It is the chart surface,
// the summary surface, the stale indicator and the worker list consumer for
// one Session.
type TerminalView struct {
	mu       sync.Mutex
	grid     *ui.Grid
	chart    *SeriesChart
	totals   *widgets.Paragraph
	workers  *widgets.List
	status   *widgets.Paragraph
	source   string
	interval time.Duration
	round    int
	stale    bool
	lastErr  error
	staleFor func() (time.Duration, bool)
}

func NewTerminalView(source string, cfg *Config) *TerminalView {
	v := &TerminalView{
		chart:    NewSeriesChart(cfg.Window),
		totals:   widgets.NewParagraph(),
		workers:  widgets.NewList(),
		status:   widgets.NewParagraph(),
		source:   source,
		interval: cfg.Interval,
		round:    -1,
		staleFor: func() (time.Duration, bool) { return 0, false },
	}

	v.totals.Title = "CPUs"
	v.totals.Text = "Active CPUs: -\nTotal CPUs:  -"
	v.totals.TextStyle = ui.NewStyle(ui.ColorYellow)

	v.workers.Title = "Workers"
	v.workers.TextStyle = ui.NewStyle(ui.ColorYellow)
	v.workers.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorYellow)
	v.workers.WrapText = false

	v.status.Border = false
	v.status.TextStyle = ui.NewStyle(ui.ColorWhite)

	v.grid = ui.NewGrid()
	v.grid.Set(
		ui.NewRow(0.65, ui.NewCol(1.0, v.chart)),
		ui.NewRow(0.3,
			ui.NewCol(0.3, v.totals),
			ui.NewCol(0.7, v.workers),
		),
		ui.NewRow(0.05, ui.NewCol(1.0, v.status)),
	)
	v.status.Text = v.statusText()
	return v
}

// SetAgeFunc sets where the view reads the age of the data on screen from
func (v *TerminalView) SetAgeFunc(age func() (time.Duration, bool)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staleFor = age
}

func (v *TerminalView) ShowSummary(s Summary) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totals.Text = fmt.Sprintf("Active CPUs: %d\nTotal CPUs:  %d", s.ActiveTotal, s.CapacityTotal)
	v.render()
}

func (v *TerminalView) DrawChart(series []SeriesView, opts ChartOptions) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chart.SetSeries(series, opts)
	v.render()
}

func (v *TerminalView) Consume(snapshot *Snapshot, index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rows := make([]string, 0, len(snapshot.Workers))
	for _, w := range snapshot.Workers {
		rows = append(rows, workerRow(w))
	}
	v.workers.Rows = rows
	if v.workers.SelectedRow >= len(rows) {
		v.workers.SelectedRow = max(0, len(rows)-1)
	}
	v.round = index
	v.status.Text = v.statusText()
	v.render()
}

func (v *TerminalView) SetStale(stale bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = stale
	v.lastErr = err
	if stale {
		v.status.TextStyle = ui.NewStyle(ui.ColorRed, ui.ColorClear, ui.ModifierBold)
	} else {
		v.status.TextStyle = ui.NewStyle(ui.ColorWhite)
	}
	v.status.Text = v.statusText()
	v.render()
}

// Resize lays the grid out over the whole terminal and redraws
func (v *TerminalView) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.grid.SetRect(0, 0, width, height)
	ui.Clear()
	v.render()
}

// handleKey scrolls the worker list
func (v *TerminalView) handleKey(id, previousKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.workers.Rows) == 0 {
		return
	}
	switch id {
	case "j", "<Down>":
		v.workers.ScrollDown()
	case "k", "<Up>":
		v.workers.ScrollUp()
	case "<C-d>":
		v.workers.ScrollHalfPageDown()
	case "<C-u>":
		v.workers.ScrollHalfPageUp()
	case "g":
		if previousKey != "g" {
			return
		}
		v.workers.ScrollTop()
	case "<Home>":
		v.workers.ScrollTop()
	case "G", "<End>":
		v.workers.ScrollBottom()
	default:
		return
	}
	v.render()
}

func (v *TerminalView) statusText() string {
	text := fmt.Sprintf("%s  every %s", v.source, v.interval)
	if v.round >= 0 {
		text += fmt.Sprintf("  round %d", v.round)
	}
	if v.stale {
		text += fmt.Sprintf("  STALE (%s): %v", lastGoodText(v.staleFor), v.lastErr)
	}
	return text + "  r=Refresh  q=Quit"
}

// render must be called with mu held
func (v *TerminalView) render() {
	if v.grid.Dx() == 0 || v.grid.Dy() == 0 {
		return
	}
	ui.Render(v.grid)
}

func workerRow(w WorkerStatus) string {
	name := w.Name
	if name == "" {
		name = "-"
	}
	row := fmt.Sprintf("%-24s %3d/%-3d", name, w.CPUActive, w.CPUCapacity)
	if w.Type != "" {
		row += "  " + w.Type
	}
	if w.Processes > 0 {
		row += fmt.Sprintf("  %d procs", w.Processes)
	}
	return row
}

// RunTerminal shows the interactive dashboard until the user quits or ctx is
// done. The indicators and consumers in observers are driven by the same
// session.
func RunTerminal(ctx context.Context, cfg *Config, source DetectedSource, logger *log.Logger, observers Surfaces) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := NewTerminalView(source.Name, cfg)
	surfaces := Surfaces{
		Chart:   view,
		Summary: view,
		Stale:   []StaleIndicator{view},
		Extra:   []Consumer{view},
	}.With(observers)
	session := NewSession(cfg, source.Fetcher, surfaces, logger)
	view.SetAgeFunc(session.StaleFor)

	termWidth, termHeight := ui.TerminalDimensions()
	view.Resize(termWidth, termHeight)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Dispatcher stopped: %v", err)
		}
	}()
	defer wg.Wait()
	defer cancel()

	previousKey := ""
	uiEvents := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "r":
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := session.Refresh(ctx); errors.Is(err, ErrRoundInFlight) {
						logger.Printf("Refresh skipped: %v", err)
					}
				}()
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				view.Resize(payload.Width, payload.Height)
			default:
				view.handleKey(e.ID, previousKey)
			}
			if previousKey == "g" {
				previousKey = ""
			} else {
				previousKey = e.ID
			}
		}
	}
}
