package multinodetop

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusFetcher reads dispatcher status from a Prometheus server that
// scrapes the dispatcher's /metrics endpoint
type PrometheusFetcher struct {
	api    v1.API
	url    *url.URL
	logger *log.Logger
}

func NewPrometheusFetcher(prometheusURL *url.URL, logger *log.Logger) (*PrometheusFetcher, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &PrometheusFetcher{
		api:    v1.NewAPI(client),
		url:    prometheusURL,
		logger: logger,
	}, nil
}

func (p *PrometheusFetcher) String() string {
	return p.url.String()
}

// Check verifies the server answers and has a waiting-tasks series to offer
func (p *PrometheusFetcher) Check(ctx context.Context) error {
	vector, err := p.query(ctx, METRIC_WAITING_TASKS)
	if err != nil {
		return err
	}
	if vector.Len() == 0 {
		return fmt.Errorf("no %s series found in prometheus", METRIC_WAITING_TASKS)
	}
	return nil
}

func (p *PrometheusFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	samples := newWorkerSamples()

	cpus, err := p.query(ctx, METRIC_WORKER_CPUS)
	if err != nil {
		return nil, err
	}
	for _, sample := range cpus {
		if err := samples.addCPUs(string(sample.Metric[LABEL_WORKER]), string(sample.Metric[LABEL_TYPE]), float64(sample.Value)); err != nil {
			return nil, err
		}
	}

	active, err := p.query(ctx, METRIC_WORKER_ACTIVE)
	if err != nil {
		return nil, err
	}
	for _, sample := range active {
		if err := samples.addActive(string(sample.Metric[LABEL_WORKER]), string(sample.Metric[LABEL_TYPE]), float64(sample.Value)); err != nil {
			return nil, err
		}
	}

	waiting, err := p.query(ctx, METRIC_WAITING_TASKS)
	if err != nil {
		return nil, err
	}
	for _, sample := range waiting {
		if err := samples.setWaiting(float64(sample.Value)); err != nil {
			return nil, err
		}
	}

	return samples.snapshot()
}

func (p *PrometheusFetcher) query(ctx context.Context, query string) (model.Vector, error) {
	result, warnings, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("prometheus query %q failed: %w", query, err)
	}
	if len(warnings) > 0 && p.logger != nil {
		p.logger.Printf("Prometheus warnings for %q: %v", query, warnings)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: query %q returned %s, want vector", ErrMalformedSnapshot, query, result.Type())
	}
	return vector, nil
}
