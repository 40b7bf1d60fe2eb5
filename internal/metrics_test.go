package multinodetop

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredSamples(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric())
		}
	}
	return 0
}

func TestRoundMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cache := NewCache(&scriptedFetcher{results: []error{nil}})
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }
	m := NewRoundMetrics(reg, cache)

	// nothing to republish before the first good fetch
	if got := gatheredSamples(t, reg, METRIC_WAITING_TASKS); got != 0 {
		t.Errorf("expected no snapshot samples before the first fetch, got %d", got)
	}

	snapshot, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Consume(snapshot, 0)
	m.SetStale(true, errFetch)
	m.SetStale(true, errFetch)
	now = now.Add(10 * time.Second)

	if got := testutil.ToFloat64(m.rounds); got != 1 {
		t.Errorf("expected 1 round, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.stale); got != 1 {
		t.Errorf("expected stale, got %v", got)
	}
	if got := testutil.ToFloat64(m.active); got != 1 {
		t.Errorf("expected 1 active, got %v", got)
	}
	if got := testutil.ToFloat64(m.capacity); got != 8 {
		t.Errorf("expected 8 total, got %v", got)
	}
	if got := gatheredSamples(t, reg, "multinodetop_last_success_age_seconds"); got != 1 {
		t.Errorf("expected the age gauge, got %d samples", got)
	}
	if got := gatheredSamples(t, reg, METRIC_WORKER_CPUS); got != 1 {
		t.Errorf("expected the cached snapshot republished, got %d samples", got)
	}

	m.SetStale(false, nil)
	if got := testutil.ToFloat64(m.stale); got != 0 {
		t.Errorf("expected recovered, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"multinodetop_rounds_total",
		"multinodetop_last_success_age_seconds",
		METRIC_WORKER_CPUS,
		METRIC_WORKER_ACTIVE,
		METRIC_WAITING_TASKS,
	} {
		if !names[want] {
			t.Errorf("expected %s to be registered", want)
		}
	}
}

func TestSnapshotCollectorEmpty(t *testing.T) {
	c := NewSnapshotCollector(func() (*Snapshot, bool) { return nil, false })
	if got := testutil.CollectAndCount(c); got != 0 {
		t.Errorf("expected no samples, got %d", got)
	}
}

func TestSnapshotCollectorUnnamedWorkers(t *testing.T) {
	s := &Snapshot{Workers: []WorkerStatus{{CPUCapacity: 2}, {CPUCapacity: 4}}}
	c := NewSnapshotCollector(func() (*Snapshot, bool) { return s, true })
	// two samples per worker plus waiting tasks
	if got := testutil.CollectAndCount(c); got != 5 {
		t.Errorf("expected 5 samples, got %d", got)
	}
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewMetricsServer(WithAddr("127.0.0.1:0"), WithRegistry(reg), WithServerLogger(discard))
	if server.Registry() != reg {
		t.Fatal("expected the given registry to be served")
	}
	NewRoundMetrics(reg, NewCache(&scriptedFetcher{results: []error{nil}})).Consume(snapshotOf(1, 2, 3), 0)
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/metrics": "multinodetop_rounds_total 1",
	} {
		resp, err := http.Get("http://" + server.Addr() + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Errorf("GET %s: expected 200 containing %q, got %d\n%s", path, want, resp.StatusCode, body)
		}
	}
}
