package multinodetop

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ExporterFetcher reads dispatcher status published in the Prometheus text
// exposition format (see the demo server's /metrics)
type ExporterFetcher struct {
	client *http.Client
	url    *url.URL
}

func NewExporterFetcher(metricsURL *url.URL, timeout time.Duration) *ExporterFetcher {
	return &ExporterFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		url: metricsURL,
	}
}

func (e *ExporterFetcher) String() string {
	return e.url.String()
}

func (e *ExporterFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	body, err := get(ctx, e.client, e.url.String())
	if err != nil {
		return nil, err
	}
	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse metrics: %v", ErrMalformedSnapshot, err)
	}
	return snapshotFromFamilies(families)
}

func snapshotFromFamilies(families map[string]*dto.MetricFamily) (*Snapshot, error) {
	samples := newWorkerSamples()

	for _, metric := range families[METRIC_WORKER_CPUS].GetMetric() {
		worker, kind := workerLabels(metric)
		if err := samples.addCPUs(worker, kind, gaugeValue(metric)); err != nil {
			return nil, err
		}
	}
	for _, metric := range families[METRIC_WORKER_ACTIVE].GetMetric() {
		worker, kind := workerLabels(metric)
		if err := samples.addActive(worker, kind, gaugeValue(metric)); err != nil {
			return nil, err
		}
	}
	for _, metric := range families[METRIC_WAITING_TASKS].GetMetric() {
		if err := samples.setWaiting(gaugeValue(metric)); err != nil {
			return nil, err
		}
	}

	return samples.snapshot()
}

func workerLabels(metric *dto.Metric) (worker, kind string) {
	for _, label := range metric.GetLabel() {
		switch label.GetName() {
		case LABEL_WORKER:
			worker = label.GetValue()
		case LABEL_TYPE:
			kind = label.GetValue()
		}
	}
	return worker, kind
}

// gaugeValue accepts gauges and untyped samples, which is what a plain
// text exposition without TYPE lines produces
func gaugeValue(metric *dto.Metric) float64 {
	if metric.Gauge != nil {
		return metric.GetGauge().GetValue()
	}
	return metric.GetUntyped().GetValue()
}

// workerSamples joins per-worker series keyed by the worker label. A worker
// label must be present and unique within each metric, and there must be
// exactly one waiting-tasks series, or the totals would be wrong.
type workerSamples struct {
	cpus       map[string]float64
	active     map[string]float64
	types      map[string]string
	waiting    float64
	hasWaiting bool
}

func newWorkerSamples() *workerSamples {
	return &workerSamples{
		cpus:   make(map[string]float64),
		active: make(map[string]float64),
		types:  make(map[string]string),
	}
}

func (w *workerSamples) addCPUs(worker, kind string, value float64) error {
	return w.add(w.cpus, METRIC_WORKER_CPUS, worker, kind, value)
}

func (w *workerSamples) addActive(worker, kind string, value float64) error {
	return w.add(w.active, METRIC_WORKER_ACTIVE, worker, kind, value)
}

func (w *workerSamples) add(values map[string]float64, metric, worker, kind string, value float64) error {
	if worker == "" {
		return fmt.Errorf("%w: %s sample without a %s label", ErrMalformedSnapshot, metric, LABEL_WORKER)
	}
	if _, ok := values[worker]; ok {
		return fmt.Errorf("%w: more than one %s series for worker %q", ErrMalformedSnapshot, metric, worker)
	}
	values[worker] = value
	if kind != "" {
		w.types[worker] = kind
	}
	return nil
}

func (w *workerSamples) setWaiting(value float64) error {
	if w.hasWaiting {
		return fmt.Errorf("%w: more than one %s series", ErrMalformedSnapshot, METRIC_WAITING_TASKS)
	}
	w.waiting = value
	w.hasWaiting = true
	return nil
}

func (w *workerSamples) snapshot() (*Snapshot, error) {
	if !w.hasWaiting {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedSnapshot, METRIC_WAITING_TASKS)
	}
	waiting, err := countOf(w.waiting, METRIC_WAITING_TASKS)
	if err != nil {
		return nil, err
	}

	// sort by worker name so the table order is stable between rounds
	names := make([]string, 0, len(w.cpus))
	for name := range w.cpus {
		names = append(names, name)
	}
	for name := range w.active {
		if _, ok := w.cpus[name]; !ok {
			return nil, fmt.Errorf("%w: worker %q has %s but no %s", ErrMalformedSnapshot, name, METRIC_WORKER_ACTIVE, METRIC_WORKER_CPUS)
		}
	}
	slices.Sort(names)

	snapshot := &Snapshot{
		Workers:      make([]WorkerStatus, 0, len(names)),
		WaitingTasks: waiting,
	}
	for _, name := range names {
		activeValue, ok := w.active[name]
		if !ok {
			return nil, fmt.Errorf("%w: worker %q has %s but no %s", ErrMalformedSnapshot, name, METRIC_WORKER_CPUS, METRIC_WORKER_ACTIVE)
		}
		cpus, err := countOf(w.cpus[name], METRIC_WORKER_CPUS)
		if err != nil {
			return nil, err
		}
		active, err := countOf(activeValue, METRIC_WORKER_ACTIVE)
		if err != nil {
			return nil, err
		}
		snapshot.Workers = append(snapshot.Workers, WorkerStatus{
			Name:        name,
			CPUCapacity: cpus,
			CPUActive:   active,
			Type:        w.types[name],
		})
	}
	return snapshot, nil
}
