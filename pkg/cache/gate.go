package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bgviewer/binggallery/pkg/bing"
)

// accessGate serializes disk and network access per calendar date: at
// most one goroutine holds a given date at a time, so no reader ever
// observes a half-written image file.
//
// One binary semaphore is created per date on first use and kept for
// the life of the process; the date space is bounded by the calendar,
// so the map only growing is fine. The gate's own mutex guards only
// semaphore creation, never a wait.
type accessGate struct {
	mu    sync.Mutex
	dates map[int]*semaphore.Weighted
}

func newAccessGate() *accessGate {
	return &accessGate{dates: map[int]*semaphore.Weighted{}}
}

func (g *accessGate) sem(d bing.Date) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.dates[d.Compact()]
	if !ok {
		s = semaphore.NewWeighted(1)
		g.dates[d.Compact()] = s
	}
	return s
}

// acquire blocks until no other goroutine holds d, or ctx is done.
func (g *accessGate) acquire(ctx context.Context, d bing.Date) error {
	return g.sem(d).Acquire(ctx, 1)
}

// release releases d. Releasing a date that was never acquired is a
// programming error and panics.
func (g *accessGate) release(d bing.Date) {
	g.mu.Lock()
	s, ok := g.dates[d.Compact()]
	g.mu.Unlock()
	if !ok {
		panic("cache: access gate released for a date never acquired")
	}
	s.Release(1)
}
