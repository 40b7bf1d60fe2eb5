package multinodetop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type staleEvent struct {
	stale bool
	err   error
}

type recordingIndicator struct {
	mu     sync.Mutex
	events []staleEvent
}

func (r *recordingIndicator) SetStale(stale bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, staleEvent{stale, err})
}

func (r *recordingIndicator) Events() []staleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]staleEvent(nil), r.events...)
}

// scriptedFetcher returns its results in order, then repeats the last one
type scriptedFetcher struct {
	mu      sync.Mutex
	results []error
	calls   int
}

var errFetch = errors.New("connection refused")

func (f *scriptedFetcher) Fetch(_ context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	if err != nil {
		return nil, err
	}
	return snapshotOf(f.calls, 8, 0), nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDispatcherConsumerOrder(t *testing.T) {
	d := NewDispatcher(&scriptedFetcher{results: []error{nil}})

	var order []string
	for _, name := range []string{"summary", "chart", "table"} {
		d.Register(ConsumerFunc(func(_ *Snapshot, index int) {
			if index != 0 {
				t.Errorf("%s: expected index 0, got %d", name, index)
			}
			order = append(order, name)
		}))
	}

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"summary", "chart", "table"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected %v, got %v", want, order)
			break
		}
	}
}

func TestDispatcherSequenceSkipsFailedRounds(t *testing.T) {
	fetcher := &scriptedFetcher{results: []error{nil, errFetch, errFetch, nil, nil}}
	d := NewDispatcher(fetcher)

	var indices []int
	d.Register(ConsumerFunc(func(_ *Snapshot, index int) {
		indices = append(indices, index)
	}))

	for range 5 {
		_ = d.Poll(context.Background())
	}

	want := []int{0, 1, 2}
	if len(indices) != len(want) {
		t.Fatalf("expected indices %v, got %v", want, indices)
	}
	for i := range want {
		if indices[i] != want[i] {
			t.Errorf("expected indices %v, got %v", want, indices)
			break
		}
	}
	if d.Sequence() != 3 {
		t.Errorf("expected sequence 3, got %d", d.Sequence())
	}
	if d.Failures() != 0 {
		t.Errorf("expected failures reset to 0, got %d", d.Failures())
	}
}

func TestDispatcherFailedRound(t *testing.T) {
	d := NewDispatcher(&scriptedFetcher{results: []error{errFetch}})
	called := false
	d.Register(ConsumerFunc(func(*Snapshot, int) { called = true }))

	err := d.Poll(context.Background())
	if !errors.Is(err, errFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if called {
		t.Error("consumer called for a failed round")
	}
	if d.Sequence() != 0 {
		t.Errorf("expected sequence 0, got %d", d.Sequence())
	}
	if d.Failures() != 1 {
		t.Errorf("expected 1 failure, got %d", d.Failures())
	}
	if d.State() != StateIdle {
		t.Errorf("expected state %s, got %s", StateIdle, d.State())
	}
}

func TestDispatcherNilSnapshot(t *testing.T) {
	d := NewDispatcher(FetcherFunc(func(context.Context) (*Snapshot, error) {
		return nil, nil
	}))
	if err := d.Poll(context.Background()); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}
}

func TestDispatcherStaleIndicator(t *testing.T) {
	fetcher := &scriptedFetcher{results: []error{nil, errFetch, errFetch, nil, nil}}
	d := NewDispatcher(fetcher)
	indicator := &recordingIndicator{}
	d.Watch(indicator)

	for range 5 {
		_ = d.Poll(context.Background())
	}

	events := indicator.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	for i := range 2 {
		if !events[i].stale || !errors.Is(events[i].err, errFetch) {
			t.Errorf("event %d: expected stale with fetch error, got %+v", i, events[i])
		}
	}
	if events[2].stale || events[2].err != nil {
		t.Errorf("expected recovery event, got %+v", events[2])
	}
}

func TestDispatcherSingleRoundInFlight(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int32
	d := NewDispatcher(FetcherFunc(func(ctx context.Context) (*Snapshot, error) {
		fetches.Add(1)
		<-release
		return snapshotOf(1, 1, 0), nil
	}), WithFetchTimeout(0))

	done := make(chan error, 1)
	go func() { done <- d.Poll(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.State() != StateInFlight {
		if time.Now().After(deadline) {
			t.Fatal("round never started")
		}
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Poll(context.Background()); !errors.Is(err, ErrRoundInFlight) {
				t.Errorf("expected ErrRoundInFlight, got %v", err)
			}
		}()
	}
	wg.Wait()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
	if d.State() != StateIdle {
		t.Errorf("expected state %s after the round, got %s", StateIdle, d.State())
	}
}

func TestDispatcherFetchTimeout(t *testing.T) {
	d := NewDispatcher(FetcherFunc(func(ctx context.Context) (*Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithFetchTimeout(10*time.Millisecond))

	err := d.Poll(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.State() != StateIdle {
		t.Errorf("expected state %s, got %s", StateIdle, d.State())
	}
}

func TestDispatcherCancelledRoundIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(FetcherFunc(func(fetchCtx context.Context) (*Snapshot, error) {
		cancel()
		<-fetchCtx.Done()
		return nil, fetchCtx.Err()
	}))
	indicator := &recordingIndicator{}
	d.Watch(indicator)

	if err := d.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d.Failures() != 0 {
		t.Errorf("expected no failures counted, got %d", d.Failures())
	}
	if events := indicator.Events(); len(events) != 0 {
		t.Errorf("expected no stale events, got %+v", events)
	}
	if d.State() != StateIdle {
		t.Errorf("expected state %s, got %s", StateIdle, d.State())
	}
}

func TestDispatcherRunKeepsPollingAfterFailures(t *testing.T) {
	fetcher := &scriptedFetcher{results: []error{errFetch}}
	d := NewDispatcher(fetcher, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.Calls() < 3 {
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatalf("expected at least 3 rounds, got %d", fetcher.Calls())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if d.Sequence() != 0 {
		t.Errorf("expected sequence 0 after only failures, got %d", d.Sequence())
	}
}

func TestDispatcherOptions(t *testing.T) {
	d := NewDispatcher(nil, WithInterval(0), WithFetchTimeout(-time.Second), WithLogger(nil))
	if d.opt.Interval != PollDuration() {
		t.Errorf("expected default interval, got %s", d.opt.Interval)
	}
	if d.opt.FetchTimeout != 0 {
		t.Errorf("expected disabled timeout, got %s", d.opt.FetchTimeout)
	}
	if d.opt.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "IDLE" || StateInFlight.String() != "IN_FLIGHT" {
		t.Errorf("unexpected state names %s, %s", StateIdle, StateInFlight)
	}
}
