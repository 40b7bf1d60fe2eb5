package multinodetop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	reportHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	reportStaleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	reportOKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// PlainReport writes one text frame per round for terminals without
// full-screen support and for piping into files. Register it after the
// summary and series buffer so each frame sees the state for that round.
type PlainReport struct {
	mu      sync.Mutex
	out     io.Writer
	maxRows int
	summary Summary
	series  []SeriesView
	opts    ChartOptions
	age     func() (time.Duration, bool)
}

// NewPlainReport writes to out. maxRows limits the height of the worker
// table before it wraps into another column; zero means no limit.
func NewPlainReport(out io.Writer, maxRows int) *PlainReport {
	return &PlainReport{
		out:     out,
		maxRows: maxRows,
		opts:    DefaultChartOptions,
		age:     func() (time.Duration, bool) { return 0, false },
	}
}

// SetAgeFunc sets where the report reads the age of the last good data from.
// age reports false while nothing has been fetched.
func (r *PlainReport) SetAgeFunc(age func() (time.Duration, bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.age = age
}

func (r *PlainReport) ShowSummary(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

func (r *PlainReport) DrawChart(series []SeriesView, opts ChartOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series = series
	r.opts = opts
}

func (r *PlainReport) Consume(snapshot *Snapshot, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.frame(snapshot, index))
}

func (r *PlainReport) SetStale(stale bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stale {
		fmt.Fprintln(r.out, reportStaleStyle.Render(
			fmt.Sprintf("STALE (%s): %v", lastGoodText(r.age), err)))
		return
	}
	fmt.Fprintln(r.out, reportOKStyle.Render("Data source recovered"))
}

func lastGoodText(age func() (time.Duration, bool)) string {
	d, ok := age()
	if !ok {
		return "no data yet"
	}
	return fmt.Sprintf("last good data %s ago", d.Round(time.Second))
}

func (r *PlainReport) frame(snapshot *Snapshot, index int) string {
	heading := reportHeadingStyle.Render(fmt.Sprintf("Round %d  %s", index, time.Now().Format(time.TimeOnly)))

	totals := NewPane("CPUs", 0, 0).SetContent(fmt.Sprintf(
		"Active CPUs:   %d\nTotal CPUs:    %d\nWaiting tasks: %d",
		r.summary.ActiveTotal, r.summary.CapacityTotal, snapshot.WaitingTasks))
	history := NewPane("History", 0, 0).SetContent(r.seriesTable())
	top := Horizontal(totals, history)

	workers := NewWrapTable().
		Headers("Worker", "Type", "Active", "CPUs", "Processes").
		Rows(workerRows(snapshot.Workers)...).
		MaxHeight(r.maxRows).
		Render()
	if workers == "" {
		workers = "No workers"
	}

	return strings.Join([]string{heading, top, workers}, "\n")
}

func (r *PlainReport) seriesTable() string {
	if len(r.series) == 0 || len(r.series[0].Points) == 0 {
		return "No data"
	}
	headers := []string{"Round"}
	for _, s := range r.series {
		headers = append(headers, s.Name)
	}
	rows := make([][]string, len(r.series[0].Points))
	for i, p := range r.series[0].Points {
		row := []string{strconv.Itoa(p.Index)}
		for _, s := range r.series {
			row = append(row, formatValue(s.Points[i].Value, r.opts))
		}
		rows[i] = row
	}
	return NewWrapTable().Headers(headers...).Rows(rows...).Render()
}

func formatValue(v float64, opts ChartOptions) string {
	if opts.IntegerTicks {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func workerRows(workers []WorkerStatus) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		name := w.Name
		if name == "" {
			name = "-"
		}
		processes := "-"
		if w.Processes > 0 {
			processes = strconv.Itoa(w.Processes)
		}
		rows = append(rows, []string{
			name,
			w.Type,
			strconv.Itoa(w.CPUActive),
			strconv.Itoa(w.CPUCapacity),
			processes,
		})
	}
	return rows
}

// RunPlain writes a report frame to out after every successful round until
// ctx is done
func RunPlain(ctx context.Context, cfg *Config, source DetectedSource, logger *log.Logger, out io.Writer, observers Surfaces) error {
	report := NewPlainReport(out, cfg.WorkerRows)
	surfaces := Surfaces{
		Chart:   report,
		Summary: report,
		Stale:   []StaleIndicator{report},
		Extra:   []Consumer{report},
	}.With(observers)
	session := NewSession(cfg, source.Fetcher, surfaces, logger)
	report.SetAgeFunc(session.StaleFor)

	logger.Printf("Polling %s (%s) every %s", source.Name, source.Backend, cfg.Interval)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
