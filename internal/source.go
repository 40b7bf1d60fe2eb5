package multinodetop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"
)

// ErrNoSource is returned when no backend answered at any URL variant
var ErrNoSource = errors.New("multinodetop: no data source found")

// DetectedSource holds a data source and its display name
type DetectedSource struct {
	Fetcher Fetcher
	Backend string
	Name    string
}

// NewSource builds the fetcher for an explicitly chosen backend
func NewSource(backend string, u *url.URL, timeout time.Duration, logger *log.Logger) (DetectedSource, error) {
	switch backend {
	case BACKEND_JSON:
		return DetectedSource{Fetcher: NewHTTPFetcher(u, timeout), Backend: backend, Name: u.Host}, nil
	case BACKEND_EXPORTER:
		return DetectedSource{Fetcher: NewExporterFetcher(u, timeout), Backend: backend, Name: u.Host}, nil
	case BACKEND_PROMETHEUS:
		pf, err := NewPrometheusFetcher(u, logger)
		if err != nil {
			return DetectedSource{}, err
		}
		return DetectedSource{Fetcher: pf, Backend: backend, Name: u.Host}, nil
	default:
		return DetectedSource{}, fmt.Errorf("%w: backend %q", ErrInvalidConfig, backend)
	}
}

// DetectSource tries the JSON endpoint, then the exposition endpoint, then the
// Prometheus API over all URL variants, and returns the first backend that
// produces a valid snapshot
func DetectSource(ctx context.Context, baseURL *url.URL, timeout time.Duration, logger *log.Logger) (DetectedSource, error) {
	for _, backend := range []string{BACKEND_JSON, BACKEND_EXPORTER, BACKEND_PROMETHEUS} {
		for _, variant := range generateURLVariants(baseURL, backend) {
			if err := ctx.Err(); err != nil {
				return DetectedSource{}, err
			}
			logger.Printf("Trying %s backend: %s", backend, variant)
			source, err := NewSource(backend, variant, timeout, logger)
			if err != nil {
				logger.Printf("Failed to create %s client: %v", backend, err)
				continue
			}
			if err := probe(ctx, source.Fetcher, timeout); err != nil {
				logger.Printf("%s check failed: %v", backend, err)
				continue
			}
			logger.Printf("Found %s backend at %s", backend, variant)
			return source, nil
		}
	}
	return DetectedSource{}, fmt.Errorf("%w at %s", ErrNoSource, baseURL)
}

func probe(ctx context.Context, f Fetcher, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if pf, ok := f.(*PrometheusFetcher); ok {
		if err := pf.Check(ctx); err != nil {
			return err
		}
	}
	_, err := f.Fetch(ctx)
	return err
}

// generateURLVariants creates the URL combinations to try for one backend
func generateURLVariants(base *url.URL, backend string) []*url.URL {
	var variants []*url.URL
	hostname := base.Hostname()
	port := base.Port()
	path := base.Path

	// Schemes to try: keep what was given first
	schemes := []string{"http", "https"}
	if base.Scheme == "https" {
		schemes = []string{"https", "http"}
	}

	// Ports to try: given port, pymultinode's default, Prometheus, plain HTTP
	ports := []string{"12456", "9090", "80"}
	if port != "" {
		ports = append([]string{port}, ports...)
	}
	seen := make(map[string]bool)
	uniquePorts := []string{}
	for _, p := range ports {
		if !seen[p] {
			seen[p] = true
			uniquePorts = append(uniquePorts, p)
		}
	}
	ports = uniquePorts

	// Paths to try: an explicit path wins unless it is the root
	var paths []string
	switch {
	case path != "" && path != "/":
		paths = []string{path}
	case backend == BACKEND_JSON:
		paths = []string{"/data"}
	case backend == BACKEND_EXPORTER:
		paths = []string{"/metrics"}
	default:
		paths = []string{""}
	}

	for _, scheme := range schemes {
		for _, p := range ports {
			for _, urlPath := range paths {
				variants = append(variants, &url.URL{
					Scheme: scheme,
					Host:   net.JoinHostPort(hostname, p),
					Path:   urlPath,
				})
			}
		}
	}
	return variants
}
