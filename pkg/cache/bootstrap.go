package cache

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/store"
)

const (
	// defaultBackfillDays is how far back metadata is acquired when
	// the local store has nothing newer.
	defaultBackfillDays = 31

	// initialPageSize is the page size the acquisition loop starts
	// with; the feed's real per-call cap is discovered by watching how
	// much actually comes back.
	initialPageSize = 8

	// maxAcquireRetries bounds how many times the acquisition is
	// restarted after a day-zero shift it could not correct.
	maxAcquireRetries = 3
)

// bootstrapper reconciles the locally known date range against the
// live feed once at startup, backfilling missing metadata.
type bootstrapper struct {
	feed   bing.Client
	store  store.Store
	logger log.Logger
}

// run returns the date range to publish for the session. The store's
// recorded earliest date wins as the lower bound when present; the
// upper bound is today as the feed sees it.
func (b *bootstrapper) run(ctx context.Context) (DateRange, error) {
	today := bing.Today()
	floor := today.AddDays(-defaultBackfillDays)

	var rangeMin bing.Date
	minSet := false

	// Only backfill forward from the newest date already recorded.
	if last, err := b.store.LatestDate(ctx); err == nil {
		if !last.Before(floor) {
			floor = last
		}
	} else if errors.Cause(err) != store.ErrNotFound {
		b.logger.Log("err", errors.Wrap(err, "reading latest recorded date"))
	}
	if first, err := b.store.EarliestDate(ctx); err == nil {
		rangeMin = first
		minSet = true
	} else if errors.Cause(err) != store.ErrNotFound {
		b.logger.Log("err", errors.Wrap(err, "reading earliest recorded date"))
	}

	if !floor.After(today) {
		records, anchor, lo := b.acquire(ctx, today, floor, 0)
		if ctx.Err() != nil {
			return DateRange{}, ctx.Err()
		}
		if len(records) > 0 {
			if err := b.store.SaveAll(ctx, records); err != nil {
				return DateRange{}, errors.Wrap(err, "persisting acquired metadata")
			}
			b.logger.Log("info", "backfilled metadata", "records", len(records), "from", lo, "to", anchor)
		} else {
			b.logger.Log("warning", "no metadata acquired from feed")
		}
		today, floor = anchor, lo
	}

	if !minSet {
		rangeMin = floor
	}
	return DateRange{Min: rangeMin, Max: today}, nil
}

// acquire pages through the feed from anchor back to floor and merges
// the records, deduplicated by date. The feed caps how many days one
// call returns and the cap is only discoverable by asking; and its
// day zero can roll over while we page, which surfaces as a duplicate
// date and is corrected (or the whole acquisition retried, up to
// maxAcquireRetries). Returns the merged records plus the actual
// max/min dates they span.
func (b *bootstrapper) acquire(ctx context.Context, anchor, floor bing.Date, retry int) ([]bing.ImageRecord, bing.Date, bing.Date) {
	if retry > maxAcquireRetries {
		return nil, anchor, floor
	}

	set := map[int]bing.ImageRecord{}
	dateShifted := false
	merge := func(rec bing.ImageRecord, flagDup bool) {
		d, err := rec.Date()
		if err != nil {
			b.logger.Log("warning", "feed returned record with invalid date", "startdate", rec.StartDate)
			return
		}
		if _, dup := set[d.Compact()]; dup {
			if flagDup {
				// A repeat date while paging: the feed's day zero
				// shifted under us.
				dateShifted = true
			}
			return
		}
		set[d.Compact()] = rec
	}

	offset, pageCap := 0, initialPageSize
	offsetMax := anchor.DaysSince(floor)
	for offset <= offsetMax {
		count := offsetMax - offset + 1
		if count > pageCap {
			count = pageCap
		}
		batch, err := b.feed.FetchBatch(ctx, offset, count)
		if err != nil || len(batch) == 0 {
			// Feed exhausted or failing; keep what we have.
			if err != nil && ctx.Err() == nil {
				b.logger.Log("err", errors.Wrap(err, "fetching metadata batch"))
			}
			break
		}
		if len(batch) > count {
			// More than asked for: the feed handed back everything it
			// has left, so the acquisition is complete.
			for _, rec := range batch {
				merge(rec, false)
			}
			break
		}
		if len(batch) < count {
			// The feed is capping itself; adopt its cap.
			pageCap = len(batch)
			count = len(batch)
		}
		for _, rec := range batch {
			merge(rec, true)
		}
		offset += count
	}
	if ctx.Err() != nil {
		return nil, anchor, floor
	}

	if dateShifted {
		newAnchor, ok := b.tryShiftDate(ctx, anchor, set)
		if !ok {
			return b.acquire(ctx, anchor, floor, retry+1)
		}
		anchor = newAnchor
	}
	if len(set) == 0 {
		return b.acquire(ctx, anchor, floor, retry+1)
	}

	records := make([]bing.ImageRecord, 0, len(set))
	minKey, maxKey := 0, 0
	for key, rec := range set {
		records = append(records, rec)
		if minKey == 0 || key < minKey {
			minKey = key
		}
		if key > maxKey {
			maxKey = key
		}
	}
	bing.SortRecords(records)
	anchor, _ = bing.DateFromCompact(maxKey)
	floor, _ = bing.DateFromCompact(minKey)
	return records, anchor, floor
}

// tryShiftDate probes the feed's current day zero after a duplicate
// turned up mid-acquisition. A day zero exactly one day newer than
// the anchor is folded in and accepted; anything else means the
// acquisition cannot be trusted and must be retried.
func (b *bootstrapper) tryShiftDate(ctx context.Context, anchor bing.Date, set map[int]bing.ImageRecord) (bing.Date, bool) {
	batch, err := b.feed.FetchBatch(ctx, 0, 1)
	if err != nil || len(batch) != 1 {
		return anchor, false
	}
	newAnchor, err := batch[0].Date()
	if err != nil {
		return anchor, false
	}
	if newAnchor.DaysSince(anchor) != 1 {
		return anchor, false
	}
	if _, ok := set[newAnchor.Compact()]; !ok {
		set[newAnchor.Compact()] = batch[0]
	}
	return newAnchor, true
}
