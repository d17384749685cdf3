package store

// Monitoring middleware for the metadata store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/bgviewer/binggallery/pkg/bing"
	bgvmetrics "github.com/bgviewer/binggallery/pkg/metrics"
)

var (
	storeDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "binggallery",
		Subsystem: "store",
		Name:      "request_duration_seconds",
		Help:      "Duration of metadata store requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{bgvmetrics.LabelMethod, bgvmetrics.LabelSuccess})
)

type instrumentedStore struct {
	next Store
}

func NewInstrumentedStore(next Store) Store {
	return &instrumentedStore{
		next: next,
	}
}

func (m *instrumentedStore) observe(method string, start time.Time, err error) {
	storeDuration.With(
		bgvmetrics.LabelMethod, method,
		bgvmetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
}

func (m *instrumentedStore) ReadOne(ctx context.Context, d bing.Date) (rec bing.ImageRecord, err error) {
	defer func(start time.Time) { m.observe("read_one", start, err) }(time.Now())
	rec, err = m.next.ReadOne(ctx, d)
	return
}

func (m *instrumentedStore) ReadRange(ctx context.Context, lo, hi bing.Date) (recs []bing.ImageRecord, err error) {
	defer func(start time.Time) { m.observe("read_range", start, err) }(time.Now())
	recs, err = m.next.ReadRange(ctx, lo, hi)
	return
}

func (m *instrumentedStore) EarliestDate(ctx context.Context) (d bing.Date, err error) {
	defer func(start time.Time) { m.observe("earliest_date", start, err) }(time.Now())
	d, err = m.next.EarliestDate(ctx)
	return
}

func (m *instrumentedStore) LatestDate(ctx context.Context) (d bing.Date, err error) {
	defer func(start time.Time) { m.observe("latest_date", start, err) }(time.Now())
	d, err = m.next.LatestDate(ctx)
	return
}

func (m *instrumentedStore) SaveAll(ctx context.Context, records []bing.ImageRecord) (err error) {
	defer func(start time.Time) { m.observe("save_all", start, err) }(time.Now())
	err = m.next.SaveAll(ctx, records)
	return
}

func (m *instrumentedStore) Close() error {
	return m.next.Close()
}
