package cache

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/bing/mock"
	"github.com/bgviewer/binggallery/pkg/store"
)

func newBootstrapper(feed bing.Client, st store.Store) *bootstrapper {
	return &bootstrapper{feed: feed, store: st, logger: log.NewNopLogger()}
}

func TestBootstrapPagesOnlyMissingWindow(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// The newest recorded date bounds the window: 24 days are missing,
	// which at 8 records a page is exactly three fetches.
	assert.NoError(t, st.SaveAll(ctx, []bing.ImageRecord{mock.Record(today.AddDays(-23))}))

	feed := &mock.Archive{Anchor: today, Days: 40}
	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)

	assert.Equal(t, 3, feed.Calls)
	assert.Equal(t, today.AddDays(-23), dr.Min)
	assert.Equal(t, today, dr.Max)

	records, err := st.ReadRange(ctx, dr.Min, dr.Max)
	assert.NoError(t, err)
	assert.Len(t, records, 24)
	_, err = st.ReadOne(ctx, today)
	assert.NoError(t, err)
}

func TestBootstrapDiscoversFeedPageCap(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// The feed serves at most four records per call no matter how many
	// are requested; the loop must adopt that cap after the first short
	// reply rather than skipping days.
	feed := &mock.Archive{Anchor: today, Days: 40, Cap: 4}
	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)

	assert.Equal(t, 8, feed.Calls)
	assert.Equal(t, today.AddDays(-31), dr.Min)
	assert.Equal(t, today, dr.Max)

	records, err := st.ReadRange(ctx, dr.Min, dr.Max)
	assert.NoError(t, err)
	assert.Len(t, records, 32)
}

func TestBootstrapStopsWhenFeedOvershoots(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// A reply bigger than asked for means the feed has handed over
	// everything it has left; paging must stop there.
	calls := 0
	feed := &mock.Client{FetchBatchFn: func(offset, count int) ([]bing.ImageRecord, error) {
		calls++
		var out []bing.ImageRecord
		n := count
		if offset > 0 {
			n = 12
		}
		for i := 0; i < n; i++ {
			out = append(out, mock.Record(today.AddDays(-(offset + i))))
		}
		return out, nil
	}}

	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, today.AddDays(-19), dr.Min)
	assert.Equal(t, today, dr.Max)

	records, err := st.ReadRange(ctx, dr.Min, dr.Max)
	assert.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestBootstrapRecoversFromDayZeroShift(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// After the first page the feed's day zero rolls forward by one:
	// later pages repeat a date already seen, and the probe confirms a
	// one-day-newer anchor, which gets folded into the result.
	feed := &mock.Client{FetchBatchFn: func(offset, count int) ([]bing.ImageRecord, error) {
		anchor := today
		if offset > 0 {
			anchor = today.AddDays(1)
		}
		if count == 1 {
			// The day-zero probe.
			return []bing.ImageRecord{mock.Record(today.AddDays(1))}, nil
		}
		var out []bing.ImageRecord
		for i := 0; i < count; i++ {
			out = append(out, mock.Record(anchor.AddDays(-(offset + i))))
		}
		return out, nil
	}}

	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, today.AddDays(1), dr.Max)
	assert.Equal(t, today.AddDays(-30), dr.Min)

	_, err = st.ReadOne(ctx, today.AddDays(1))
	assert.NoError(t, err)
	records, err := st.ReadRange(ctx, dr.Min, dr.Max)
	assert.NoError(t, err)
	assert.Len(t, records, 32)
}

func TestBootstrapRetriesWhenShiftCannotBeCorrected(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// Every page repeats a date, and the probe claims day zero jumped
	// two days, which is never trusted; the acquisition retries a
	// bounded number of times and then gives up empty.
	probes := 0
	feed := &mock.Client{FetchBatchFn: func(offset, count int) ([]bing.ImageRecord, error) {
		if count == 1 {
			probes++
			return []bing.ImageRecord{mock.Record(today.AddDays(2))}, nil
		}
		return []bing.ImageRecord{mock.Record(today), mock.Record(today)}, nil
	}}

	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1+maxAcquireRetries, probes)

	// Nothing trustworthy was acquired, so nothing was saved, and the
	// published range falls back to the default window.
	assert.Equal(t, today.AddDays(-defaultBackfillDays), dr.Min)
	assert.Equal(t, today, dr.Max)
	_, err = st.EarliestDate(ctx)
	assert.Equal(t, store.ErrNotFound, err)
}

func TestBootstrapToleratesDeadFeed(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	calls := 0
	feed := &mock.Client{FetchBatchFn: func(offset, count int) ([]bing.ImageRecord, error) {
		calls++
		return nil, nil
	}}

	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1+maxAcquireRetries, calls)
	assert.Equal(t, today.AddDays(-defaultBackfillDays), dr.Min)
	assert.Equal(t, today, dr.Max)
}

func TestBootstrapKeepsEarliestRecordedDate(t *testing.T) {
	ctx := context.Background()
	today := bing.Today()
	st := store.NewMemory()

	// Metadata acquired in earlier sessions extends the range further
	// back than the backfill window.
	ancient := today.AddDays(-400)
	assert.NoError(t, st.SaveAll(ctx, []bing.ImageRecord{
		mock.Record(ancient),
		mock.Record(today.AddDays(-2)),
	}))

	feed := &mock.Archive{Anchor: today, Days: 40}
	dr, err := newBootstrapper(feed, st).run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, ancient, dr.Min)
	assert.Equal(t, today, dr.Max)
}

func TestBootstrapHonoursContext(t *testing.T) {
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := &mock.Client{FetchBatchFn: func(offset, count int) ([]bing.ImageRecord, error) {
		return nil, ctx.Err()
	}}
	_, err := newBootstrapper(feed, st).run(ctx)
	assert.Equal(t, context.Canceled, err)
}
