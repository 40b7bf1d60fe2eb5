package multinodetop

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoundMetrics counts dispatcher rounds and republishes the last good
// snapshot held by the session cache. Register it as a consumer and as a
// stale indicator on the dispatcher that polls through that cache.
type RoundMetrics struct {
	cache *Cache

	rounds   prometheus.Counter
	failures prometheus.Counter
	sequence prometheus.Gauge
	active   prometheus.Gauge
	capacity prometheus.Gauge
	waiting  prometheus.Gauge
	stale    prometheus.Gauge
}

// NewRoundMetrics registers the round metrics and the last snapshot in cache
// on reg
func NewRoundMetrics(reg prometheus.Registerer, cache *Cache) *RoundMetrics {
	m := &RoundMetrics{
		cache:    cache,
		rounds:   prometheus.NewCounter(prometheus.CounterOpts{Name: "multinodetop_rounds_total", Help: "Rounds whose snapshot reached the consumers"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{Name: "multinodetop_fetch_failures_total", Help: "Rounds that failed to fetch or parse a snapshot"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{Name: "multinodetop_sequence", Help: "Index of the last successful round"}),
		active:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "multinodetop_active_cpus", Help: "Active CPUs in the last snapshot"}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{Name: "multinodetop_total_cpus", Help: "Total CPUs in the last snapshot"}),
		waiting:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "multinodetop_waiting_tasks", Help: "Waiting tasks in the last snapshot"}),
		stale:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "multinodetop_stale", Help: "1 while the last round failed"}),
	}
	lastSuccess := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "multinodetop_last_success_age_seconds",
		Help: "Seconds since the last good snapshot, 0 before the first",
	}, func() float64 { return cache.Age().Seconds() })

	reg.MustRegister(m.rounds, m.failures, m.sequence, m.active, m.capacity, m.waiting, m.stale, lastSuccess)
	reg.MustRegister(NewSnapshotCollector(func() (*Snapshot, bool) {
		snapshot, _, ok := cache.Last()
		return snapshot, ok
	}))
	return m
}

func (m *RoundMetrics) Consume(snapshot *Snapshot, index int) {
	active, capacity := snapshot.Totals()
	m.rounds.Inc()
	m.sequence.Set(float64(index))
	m.active.Set(float64(active))
	m.capacity.Set(float64(capacity))
	m.waiting.Set(float64(snapshot.WaitingTasks))
}

func (m *RoundMetrics) SetStale(stale bool, _ error) {
	if stale {
		m.failures.Inc()
		m.stale.Set(1)
		return
	}
	m.stale.Set(0)
}

// ServerOption configures a MetricsServer
type ServerOption func(*ServerOptions)

type ServerOptions struct {
	Addr     string
	Registry *prometheus.Registry
	Logger   *log.Logger
}

func WithAddr(addr string) ServerOption {
	return func(o *ServerOptions) { o.Addr = addr }
}

func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(o *ServerOptions) { o.Registry = reg }
}

func WithServerLogger(logger *log.Logger) ServerOption {
	return func(o *ServerOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// MetricsServer serves a registry on /metrics, a liveness probe on /healthz
// and any extra handlers added before Start
type MetricsServer struct {
	opt  ServerOptions
	mux  *http.ServeMux
	http *http.Server
	ln   net.Listener
	wg   sync.WaitGroup
}

func NewMetricsServer(opts ...ServerOption) *MetricsServer {
	opt := ServerOptions{
		Addr:     ":9100",
		Registry: prometheus.NewRegistry(),
		Logger:   log.Default(),
	}
	for _, f := range opts {
		f(&opt)
	}
	s := &MetricsServer{
		opt: opt,
		mux: http.NewServeMux(),
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(opt.Registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	s.http = &http.Server{Addr: opt.Addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Registry is where collectors served on /metrics are registered
func (s *MetricsServer) Registry() *prometheus.Registry {
	return s.opt.Registry
}

// Handle adds a route; call it before Start
func (s *MetricsServer) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start listens and serves in the background
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.opt.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.opt.Logger.Printf("Serving metrics on http://%s/metrics", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opt.Logger.Printf("Metrics server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address once started
func (s *MetricsServer) Addr() string {
	if s.ln == nil {
		return s.opt.Addr
	}
	return s.ln.Addr().String()
}

func (s *MetricsServer) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	return err
}
