package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bgviewer/binggallery/pkg/bing"
	bgvmetrics "github.com/bgviewer/binggallery/pkg/metrics"
)

// maxGalleryConnections is the connection budget of the gallery path:
// exactly one image download at a time, owned by the most recently
// requested date.
const maxGalleryConnections = 1

// gallerySlot is the single download slot of the gallery path. The
// user can flip through dates faster than any download completes;
// each new request records itself as the latest and the spin loop in
// resolveGallery lets only the latest claim the slot, aborting
// whatever transfer is still occupying it.
type gallerySlot struct {
	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc // aborts the transfer occupying the slot

	latestMu sync.Mutex
	latest   string // compact date key of the newest request
}

func (s *gallerySlot) setLatest(key string) {
	s.latestMu.Lock()
	s.latest = key
	s.latestMu.Unlock()
}

func (s *gallerySlot) isLatest(key string) bool {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	return s.latest == key
}

// claim attempts to take the slot for a fetch run under fctx,
// spinning while it is occupied. Occupants are aborted best-effort.
// It gives up as soon as key stops being the latest requested date,
// or ctx is done. On success the returned context governs the fetch
// and release returns the slot.
func (s *gallerySlot) claim(ctx context.Context, key string) (context.Context, func(), bool, error) {
	for {
		s.mu.Lock()
		if !s.busy {
			s.busy = true
			fctx, cancel := context.WithCancel(ctx)
			s.cancel = cancel
			s.mu.Unlock()
			release := func() {
				cancel()
				s.mu.Lock()
				s.busy = false
				s.cancel = nil
				s.mu.Unlock()
			}
			return fctx, release, true, nil
		}
		abort := s.cancel
		s.mu.Unlock()

		if !s.isLatest(key) {
			// A newer request superseded this one; stop competing.
			return nil, nil, false, nil
		}
		if abort != nil {
			abort()
		}
		select {
		case <-ctx.Done():
			return nil, nil, false, ctx.Err()
		case <-time.After(time.Millisecond):
			// yield and retry
		}
	}
}

// resolveGallery is the gallery path: serve a valid local copy if one
// exists, otherwise fetch through the single slot. It returns the
// local path, or "" when the image could not be produced (including
// when a newer request pre-empted this one).
func (m *Manager) resolveGallery(ctx context.Context, rec bing.ImageRecord, d bing.Date) (string, error) {
	if err := m.gate.acquire(ctx, d); err != nil {
		return "", err
	}
	defer m.gate.release(d)

	if path, ok := m.resolver.findValidLocalImage(rec.StartDate); ok {
		return path, nil
	}

	m.slot.setLatest(rec.StartDate)
	fctx, release, ok, err := m.slot.claim(ctx, rec.StartDate)
	if err != nil || !ok {
		return "", err
	}
	defer release()

	start := time.Now()
	fetched, ferr := m.resolver.downloadToTemp(fctx, rec)
	observeDownload(bgvmetrics.PathGallery, start, fetched)
	if ferr != nil {
		// The transfer was aborted. If our own caller cancelled,
		// propagate; if a newer request pre-empted us, that is an
		// ordinary miss.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", nil
	}
	if !fetched {
		return "", nil
	}
	m.fetchSucceeded()
	path, _ := m.resolver.findValidLocalImage(rec.StartDate)
	return path, nil
}
