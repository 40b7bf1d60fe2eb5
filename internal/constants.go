package multinodetop

import (
	"time"
)

const (
	// POLL_INTERVAL is the delay in milliseconds between the end of one round and the next fetch
	POLL_INTERVAL = 4000

	// RETENTION_WINDOW is the number of points each rolling series keeps (current + 10 prior)
	RETENTION_WINDOW = 11

	// FETCH_TIMEOUT is the time in seconds a single fetch may take before the round fails
	FETCH_TIMEOUT = 5

	// DEFAULT_DATA_URL is where a pymultinode dispatcher serves its status
	DEFAULT_DATA_URL = "http://localhost:12456/data"
)

// PollDuration returns the re-arm delay as a time.Duration
func PollDuration() time.Duration {
	return time.Duration(POLL_INTERVAL) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout as a time.Duration
func FetchTimeout() time.Duration {
	return time.Duration(FETCH_TIMEOUT) * time.Second
}

// Exposition names used when the dispatcher status is published as Prometheus metrics
const (
	METRIC_WORKER_CPUS   = "multinode_worker_cpus"
	METRIC_WORKER_ACTIVE = "multinode_worker_active"
	METRIC_WAITING_TASKS = "multinode_waiting_tasks"

	LABEL_WORKER = "worker"
	LABEL_TYPE   = "type"
)
