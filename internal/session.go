package multinodetop

import (
	"context"
	"log"
	"slices"
	"time"
)

// Surfaces are the display collaborators a Session drives
type Surfaces struct {
	Chart   ChartSurface
	Summary SummarySurface
	Stale   []StaleIndicator
	Extra   []Consumer // run after the summary and the series buffer
}

// With returns s plus the indicators and extra consumers of o
func (s Surfaces) With(o Surfaces) Surfaces {
	s.Stale = append(slices.Clone(s.Stale), o.Stale...)
	s.Extra = append(slices.Clone(s.Extra), o.Extra...)
	return s
}

// Session owns the per-process dashboard state: the last-good cache, the
// rolling series buffer, and the dispatcher with its registered consumers.
// Build one at startup and pass it to whatever needs it. A fetcher that is
// already a *Cache is used as the session cache, so collaborators built
// before the session can share it.
type Session struct {
	Cache      *Cache
	Buffer     *SeriesBuffer
	Summary    *SummaryAggregator
	Dispatcher *Dispatcher
}

func NewSession(cfg *Config, fetcher Fetcher, surfaces Surfaces, logger *log.Logger) *Session {
	cache, ok := fetcher.(*Cache)
	if !ok {
		cache = NewCache(fetcher)
	}
	s := &Session{
		Cache:   cache,
		Buffer:  NewSeriesBuffer(cfg.Window, surfaces.Chart),
		Summary: NewSummaryAggregator(surfaces.Summary),
	}
	s.Dispatcher = NewDispatcher(s.Cache,
		WithInterval(cfg.Interval),
		WithFetchTimeout(cfg.Timeout),
		WithLogger(logger),
	)

	// summary first, then the chart buffer
	s.Dispatcher.Register(s.Summary)
	s.Dispatcher.Register(s.Buffer)
	for _, c := range surfaces.Extra {
		s.Dispatcher.Register(c)
	}
	for _, indicator := range surfaces.Stale {
		s.Dispatcher.Watch(indicator)
	}
	return s
}

// Run polls until ctx is done
func (s *Session) Run(ctx context.Context) error {
	return s.Dispatcher.Run(ctx)
}

// Refresh runs one round now unless one is already in flight
func (s *Session) Refresh(ctx context.Context) error {
	return s.Dispatcher.Poll(ctx)
}

// StaleFor is how long ago the data on screen was fetched. ok is false
// until the first good round.
func (s *Session) StaleFor() (age time.Duration, ok bool) {
	if _, _, ok := s.Cache.Last(); !ok {
		return 0, false
	}
	return s.Cache.Age(), true
}
