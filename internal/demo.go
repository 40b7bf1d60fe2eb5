package multinodetop

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"
)

// DemoCluster simulates a dispatcher with a handful of workers so the
// dashboard can be tried without a real cluster
type DemoCluster struct {
	mu      sync.Mutex
	rng     *rand.Rand
	workers []WorkerStatus
	waiting int
}

// NewDemoCluster creates workers idle workers. The first is local.
func NewDemoCluster(workers int, seed uint64) *DemoCluster {
	c := &DemoCluster{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for i := range workers {
		w := WorkerStatus{
			Name:        fmt.Sprintf("node%02d", i),
			Type:        "remote",
			CPUCapacity: 4 << c.rng.IntN(3),
		}
		if i == 0 {
			w.Name = "localhost"
			w.Type = "local"
		}
		c.workers = append(c.workers, w)
	}
	return c
}

// Step advances the simulation by one tick: running tasks finish at random,
// new tasks arrive and queued tasks are handed to free slots
func (c *DemoCluster) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waiting += c.rng.IntN(6)
	for i := range c.workers {
		w := &c.workers[i]
		if w.CPUActive > 0 {
			w.CPUActive -= c.rng.IntN(w.CPUActive + 1)
		}
		take := min(c.waiting, w.CPUCapacity-w.CPUActive)
		w.CPUActive += take
		c.waiting -= take
		if w.Type == "local" {
			w.Processes = w.CPUActive
		}
	}
}

func (c *DemoCluster) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Snapshot{
		Workers:      slices.Clone(c.workers),
		WaitingTasks: c.waiting,
	}
}

// DemoServer serves a DemoCluster the way a dispatcher does on /data, and as
// exposition metrics on /metrics
type DemoServer struct {
	*MetricsServer
	cluster *DemoCluster
	every   time.Duration
	logger  *log.Logger
	stopC   chan struct{}
	wg      sync.WaitGroup
}

// NewDemoServer steps cluster every interval while running
func NewDemoServer(addr string, cluster *DemoCluster, every time.Duration, logger *log.Logger) *DemoServer {
	s := &DemoServer{
		MetricsServer: NewMetricsServer(WithAddr(addr), WithServerLogger(logger)),
		cluster:       cluster,
		every:         every,
		logger:        logger,
		stopC:         make(chan struct{}),
	}
	s.Registry().MustRegister(NewSnapshotCollector(func() (*Snapshot, bool) {
		return cluster.Snapshot(), true
	}))
	s.Handle("/data", http.HandlerFunc(s.handleData))
	return s
}

func (s *DemoServer) handleData(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cluster.Snapshot()); err != nil {
		s.logger.Printf("Failed to write demo snapshot: %v", err)
	}
}

func (s *DemoServer) Start() error {
	if err := s.MetricsServer.Start(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tk := time.NewTicker(s.every)
		defer tk.Stop()
		for {
			select {
			case <-s.stopC:
				return
			case <-tk.C:
				s.cluster.Step()
			}
		}
	}()
	return nil
}

func (s *DemoServer) Stop(ctx context.Context) error {
	close(s.stopC)
	s.wg.Wait()
	return s.MetricsServer.Stop(ctx)
}
