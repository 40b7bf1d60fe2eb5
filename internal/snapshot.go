package multinodetop

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// ErrMalformedSnapshot is returned when a status payload does not match the
// {workers: [{cpus, active}], waiting_tasks} wire contract.
var ErrMalformedSnapshot = errors.New("multinodetop: malformed snapshot")

// WorkerStatus is one compute worker as reported by the dispatcher
type WorkerStatus struct {
	Name        string `json:"name,omitempty"`
	CPUCapacity int    `json:"cpus"`
	CPUActive   int    `json:"active"`
	Type        string `json:"type,omitempty"`      // "local" or "remote"
	Processes   int    `json:"processes,omitempty"` // only reported by local workers
}

// Snapshot is one polling result. It is not modified after it has been parsed.
type Snapshot struct {
	Workers      []WorkerStatus `json:"workers"`
	WaitingTasks int            `json:"waiting_tasks"`
}

// Totals sums active and total CPU slots over all workers
func (s *Snapshot) Totals() (active, capacity int) {
	for _, w := range s.Workers {
		active += w.CPUActive
		capacity += w.CPUCapacity
	}
	return active, capacity
}

// ParseSnapshot decodes a /data response body. Any missing or non-numeric
// count fails the whole snapshot instead of being read as zero.
func ParseSnapshot(body []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedSnapshot)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedSnapshot)
	}

	workers := root.Get("workers")
	if !workers.IsArray() {
		return nil, fmt.Errorf("%w: missing workers array", ErrMalformedSnapshot)
	}

	waiting, err := count(root.Get("waiting_tasks"), "waiting_tasks")
	if err != nil {
		return nil, err
	}

	entries := workers.Array()
	snapshot := &Snapshot{
		Workers:      make([]WorkerStatus, 0, len(entries)),
		WaitingTasks: waiting,
	}
	for i, entry := range entries {
		w, err := parseWorker(entry)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		snapshot.Workers = append(snapshot.Workers, w)
	}
	return snapshot, nil
}

func parseWorker(entry gjson.Result) (WorkerStatus, error) {
	if !entry.IsObject() {
		return WorkerStatus{}, fmt.Errorf("%w: worker entry is not an object", ErrMalformedSnapshot)
	}
	cpus, err := count(entry.Get("cpus"), "cpus")
	if err != nil {
		return WorkerStatus{}, err
	}
	active, err := count(entry.Get("active"), "active")
	if err != nil {
		return WorkerStatus{}, err
	}
	w := WorkerStatus{CPUCapacity: cpus, CPUActive: active}

	if w.Name, err = optionalString(entry.Get("name"), "name"); err != nil {
		return WorkerStatus{}, err
	}
	if w.Type, err = optionalString(entry.Get("type"), "type"); err != nil {
		return WorkerStatus{}, err
	}
	if p := entry.Get("processes"); p.Exists() {
		if w.Processes, err = count(p, "processes"); err != nil {
			return WorkerStatus{}, err
		}
	}
	return w, nil
}

func optionalString(r gjson.Result, field string) (string, error) {
	if !r.Exists() {
		return "", nil
	}
	if r.Type != gjson.String {
		return "", fmt.Errorf("%w: %s is %s, want string", ErrMalformedSnapshot, field, r.Type)
	}
	return r.Str, nil
}

// count reads a non-negative integer field
func count(r gjson.Result, field string) (int, error) {
	if !r.Exists() {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedSnapshot, field)
	}
	if r.Type != gjson.Number {
		return 0, fmt.Errorf("%w: %s is %s, want number", ErrMalformedSnapshot, field, r.Type)
	}
	return countOf(r.Num, field)
}

func countOf(v float64, field string) (int, error) {
	if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s=%v is not a non-negative integer", ErrMalformedSnapshot, field, v)
	}
	return int(v), nil
}
