package bing

// Monitoring middleware for the feed client interface

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	bgvmetrics "github.com/bgviewer/binggallery/pkg/metrics"
)

var (
	fetchDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "binggallery",
		Subsystem: "feed",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of image archive metadata requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{bgvmetrics.LabelSuccess})
)

type instrumentedClient struct {
	next Client
}

func NewInstrumentedClient(next Client) Client {
	return &instrumentedClient{
		next: next,
	}
}

func (m *instrumentedClient) FetchBatch(ctx context.Context, offset, count int) (res []ImageRecord, err error) {
	start := time.Now()
	res, err = m.next.FetchBatch(ctx, offset, count)
	fetchDuration.With(
		bgvmetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
	return
}
