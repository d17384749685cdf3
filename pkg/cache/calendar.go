package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
	bgvmetrics "github.com/bgviewer/binggallery/pkg/metrics"
)

// MaxDaysConnections is the connection budget of the calendar path:
// how many per-date downloads may hold the network at once while a
// month grid is being filled in.
const MaxDaysConnections = 8

// BatchResultFunc receives the outcome for one date of a calendar
// batch: whether an image was produced and, if so, its local path.
type BatchResultFunc func(d bing.Date, ok bool, path string)

// batchRequest tracks one calendar batch: its callback, its
// cancellation state, and a handle to abort every download it has in
// flight. Exactly one batch is current at a time; starting a newer
// one cancels the old one wholesale.
type batchRequest struct {
	mu        sync.Mutex
	handler   BatchResultFunc
	cancelled bool
	inflight  map[int]context.CancelFunc

	done chan struct{}
}

func newBatchRequest(handler BatchResultFunc) *batchRequest {
	return &batchRequest{
		handler:  handler,
		inflight: map[int]context.CancelFunc{},
		done:     make(chan struct{}),
	}
}

// stop hard-cancels the batch: no callback fires after stop returns,
// and every in-flight download is aborted best-effort.
func (b *batchRequest) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
	b.handler = nil
	for _, abort := range b.inflight {
		abort()
	}
	b.inflight = map[int]context.CancelFunc{}
}

func (b *batchRequest) isCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

func (b *batchRequest) track(d bing.Date, abort context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled {
		// Lost the race with stop; abort immediately rather than
		// leaving an orphan transfer.
		abort()
		return
	}
	b.inflight[d.Compact()] = abort
}

// deliver reports a result to the handler, unless the batch has been
// cancelled, in which case the result is dropped silently. The date's
// in-flight handle is pruned either way. The handler itself runs
// outside the lock: a delivery that observed the flag clear just
// before stop set it may still be completing when stop returns, and
// such a delivery carries a result from before the cancellation.
func (b *batchRequest) deliver(d bing.Date, ok bool, path string) {
	b.mu.Lock()
	delete(b.inflight, d.Compact())
	handler := b.handler
	cancelled := b.cancelled
	b.mu.Unlock()
	if !cancelled && handler != nil {
		handler(d, ok, path)
	}
}

// startCalendarBatch supersedes any running batch and fans the
// requested dates out across the download pool. The returned channel
// closes when the batch has finished (or been superseded in turn).
func (m *Manager) startCalendarBatch(ctx context.Context, dates []bing.Date, handler BatchResultFunc) (<-chan struct{}, error) {
	if len(dates) == 0 {
		return nil, errors.New("no dates requested")
	}
	if handler == nil {
		return nil, errors.New("nil result handler")
	}

	batch := newBatchRequest(handler)
	m.batchMu.Lock()
	previous := m.batch
	m.batch = batch
	m.batchMu.Unlock()
	if previous != nil {
		previous.stop()
	}

	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}

	// The store query is range-based: every recorded date in the span
	// gets a task, not just the requested subset.
	records, err := m.store.ReadRange(ctx, lo, hi)
	if err != nil {
		close(batch.done)
		return nil, errors.Wrap(err, "reading metadata for calendar span")
	}

	go m.runBatch(ctx, batch, records)
	return batch.done, nil
}

// runBatch launches one task per record, keeping no more than the
// pool budget outstanding at the scheduler level; completed tasks
// make room for the next as they finish.
func (m *Manager) runBatch(ctx context.Context, batch *batchRequest, records []bing.ImageRecord) {
	defer close(batch.done)
	// A finished batch is no longer current; drop the reference so a
	// later batch does not stop() a batch that already completed.
	defer func() {
		m.batchMu.Lock()
		if m.batch == batch {
			m.batch = nil
		}
		m.batchMu.Unlock()
	}()

	throttle := make(chan struct{}, MaxDaysConnections)
	var wg sync.WaitGroup
	for _, rec := range records {
		if batch.isCancelled() {
			break
		}
		rec := rec
		throttle <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-throttle
				wg.Done()
			}()
			m.calendarFetch(ctx, rec, batch)
		}()
	}
	wg.Wait()
}

// calendarFetch produces the image for one date of a batch: gate the
// date, serve a valid local copy if there is one, otherwise take a
// pool permit and download.
func (m *Manager) calendarFetch(ctx context.Context, rec bing.ImageRecord, batch *batchRequest) {
	d, err := rec.Date()
	if err != nil {
		batch.deliver(bing.Date{}, false, "")
		return
	}

	if err := m.gate.acquire(ctx, d); err != nil {
		return
	}
	defer m.gate.release(d)

	if path, ok := m.resolver.findValidLocalImage(rec.StartDate); ok {
		batch.deliver(d, true, path)
		return
	}

	if err := m.pool.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.pool.Release(1)

	if batch.isCancelled() {
		return
	}

	fctx, abort := context.WithCancel(ctx)
	defer abort()
	batch.track(d, abort)

	start := time.Now()
	fetched, ferr := m.resolver.downloadToTemp(fctx, rec)
	observeDownload(bgvmetrics.PathCalendar, start, fetched)
	if ferr != nil {
		// Aborted, either by batch cancellation or by the caller;
		// nothing is delivered either way.
		return
	}
	if fetched {
		m.fetchSucceeded()
		if !batch.isCancelled() {
			if path, ok := m.resolver.findValidLocalImage(rec.StartDate); ok {
				batch.deliver(d, true, path)
				return
			}
		}
	}
	if !batch.isCancelled() {
		batch.deliver(d, false, "")
	}
}
