package multinodetop

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher obtains one worker-status snapshot. Implementations do not keep
// any state that a round depends on.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (*Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// HTTPFetcher reads the JSON document served at a dispatcher's /data path
type HTTPFetcher struct {
	client *http.Client
	url    *url.URL
}

func NewHTTPFetcher(dataURL *url.URL, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		url: dataURL,
	}
}

func (h *HTTPFetcher) String() string {
	return h.url.String()
}

func (h *HTTPFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	body, err := get(ctx, h.client, h.url.String())
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(body)
}

// get issues a GET and returns the body of a 200 response
func get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status from %s: %s", target, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
