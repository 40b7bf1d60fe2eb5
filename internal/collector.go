package multinodetop

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotCollector publishes a snapshot in the exposition format the
// ExporterFetcher reads. snapshot is called on every scrape; returning
// false publishes nothing.
type SnapshotCollector struct {
	snapshot func() (*Snapshot, bool)

	workerCPUs   *prometheus.Desc
	workerActive *prometheus.Desc
	waitingTasks *prometheus.Desc
}

func NewSnapshotCollector(snapshot func() (*Snapshot, bool)) *SnapshotCollector {
	labels := []string{LABEL_WORKER, LABEL_TYPE}
	return &SnapshotCollector{
		snapshot:     snapshot,
		workerCPUs:   prometheus.NewDesc(METRIC_WORKER_CPUS, "CPU slots a worker offers", labels, nil),
		workerActive: prometheus.NewDesc(METRIC_WORKER_ACTIVE, "CPU slots of a worker currently running a task", labels, nil),
		waitingTasks: prometheus.NewDesc(METRIC_WAITING_TASKS, "Tasks queued at the dispatcher with no worker yet", nil, nil),
	}
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.workerCPUs
	ch <- c.workerActive
	ch <- c.waitingTasks
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot, ok := c.snapshot()
	if !ok || snapshot == nil {
		return
	}
	for i, w := range snapshot.Workers {
		name := w.Name
		if name == "" {
			name = fmt.Sprintf("worker-%d", i)
		}
		ch <- prometheus.MustNewConstMetric(c.workerCPUs, prometheus.GaugeValue, float64(w.CPUCapacity), name, w.Type)
		ch <- prometheus.MustNewConstMetric(c.workerActive, prometheus.GaugeValue, float64(w.CPUActive), name, w.Type)
	}
	ch <- prometheus.MustNewConstMetric(c.waitingTasks, prometheus.GaugeValue, float64(snapshot.WaitingTasks))
}
