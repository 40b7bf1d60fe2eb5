package multinodetop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRoundInFlight is returned by Poll when another round has not settled yet
var ErrRoundInFlight = errors.New("multinodetop: round already in flight")

// Consumer receives every successfully fetched snapshot together with the
// round's sequence index. Consumers run synchronously in registration order.
type Consumer interface {
	Consume(snapshot *Snapshot, index int)
}

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc func(snapshot *Snapshot, index int)

func (f ConsumerFunc) Consume(snapshot *Snapshot, index int) {
	f(snapshot, index)
}

// StaleIndicator is told when the displayed data stops (or resumes) being current
type StaleIndicator interface {
	SetStale(stale bool, err error)
}

type State int32

const (
	StateIdle State = iota
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInFlight:
		return "IN_FLIGHT"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type DispatcherOption func(*DispatcherOptions)

type DispatcherOptions struct {
	Interval     time.Duration // delay between a settled round and the next fetch
	FetchTimeout time.Duration // 0 disables the per-fetch deadline
	Logger       *log.Logger
}

func defaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Interval:     PollDuration(),
		FetchTimeout: FetchTimeout(),
		Logger:       log.New(io.Discard, "", 0),
	}
}

func WithInterval(d time.Duration) DispatcherOption {
	return func(o *DispatcherOptions) {
		if d <= 0 {
			return
		}
		o.Interval = d
	}
}

func WithFetchTimeout(d time.Duration) DispatcherOption {
	return func(o *DispatcherOptions) {
		if d < 0 {
			d = 0
		}
		o.FetchTimeout = d
	}
}

func WithLogger(l *log.Logger) DispatcherOption {
	return func(o *DispatcherOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Dispatcher polls a Fetcher and fans each snapshot out to its consumers.
// At most one fetch is outstanding at any time; the guard is the state flag,
// not the timer chain, so manual Poll calls are safe alongside Run.
type Dispatcher struct {
	fetcher Fetcher
	opt     DispatcherOptions

	mu         sync.Mutex
	consumers  []Consumer
	indicators []StaleIndicator

	state    atomic.Int32
	sequence atomic.Int64
	failures atomic.Int64 // consecutive failed rounds
}

func NewDispatcher(fetcher Fetcher, opts ...DispatcherOption) *Dispatcher {
	cfg := defaultDispatcherOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		fetcher: fetcher,
		opt:     cfg,
	}
}

// Register appends c to the consumer list
func (d *Dispatcher) Register(c Consumer) {
	d.mu.Lock()
	d.consumers = append(d.consumers, c)
	d.mu.Unlock()
}

// Watch adds an indicator that is flagged on failed rounds and cleared on recovery
func (d *Dispatcher) Watch(s StaleIndicator) {
	d.mu.Lock()
	d.indicators = append(d.indicators, s)
	d.mu.Unlock()
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Sequence is the index the next successful round will use
func (d *Dispatcher) Sequence() int {
	return int(d.sequence.Load())
}

// Failures is the number of consecutive failed rounds
func (d *Dispatcher) Failures() int {
	return int(d.failures.Load())
}

// Poll runs one round: fetch, then hand the snapshot to every consumer in
// order and advance the sequence. A failed fetch leaves consumers and the
// sequence untouched. A fetch cut short because ctx is done returns ctx's
// error and is not counted as a failure.
func (d *Dispatcher) Poll(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateInFlight)) {
		return ErrRoundInFlight
	}
	defer d.state.Store(int32(StateIdle))

	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.opt.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, d.opt.FetchTimeout)
	}
	snapshot, err := d.fetcher.Fetch(fetchCtx)
	cancel()
	if err == nil && snapshot == nil {
		err = fmt.Errorf("%w: empty result", ErrMalformedSnapshot)
	}

	d.mu.Lock()
	consumers := slices.Clone(d.consumers)
	indicators := slices.Clone(d.indicators)
	d.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		// shutting down, not a failed round
		return ctx.Err()
	}
	if err != nil {
		n := d.failures.Add(1)
		d.opt.Logger.Printf("Round %d failed (%d in a row): %v", d.Sequence(), n, err)
		for _, s := range indicators {
			s.SetStale(true, err)
		}
		return fmt.Errorf("round %d: %w", d.Sequence(), err)
	}

	index := d.Sequence()
	for _, c := range consumers {
		c.Consume(snapshot, index)
	}
	d.sequence.Add(1)

	if n := d.failures.Swap(0); n > 0 {
		d.opt.Logger.Printf("Round %d recovered after %d failed rounds", index, n)
		for _, s := range indicators {
			s.SetStale(false, nil)
		}
	}
	return nil
}

// Run polls immediately, then again Interval after each round settles,
// whether or not it succeeded. It returns when ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := d.Poll(ctx); errors.Is(err, ErrRoundInFlight) {
			d.opt.Logger.Printf("Skipping scheduled round: %v", err)
		}
		timer.Reset(d.opt.Interval)
	}
}
