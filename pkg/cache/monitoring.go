package cache

// Monitoring for the image download paths

import (
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	bgvmetrics "github.com/bgviewer/binggallery/pkg/metrics"
)

var (
	downloadDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "binggallery",
		Subsystem: "cache",
		Name:      "download_duration_seconds",
		Help:      "Duration of image downloads, in seconds, by download path.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{bgvmetrics.LabelPath, bgvmetrics.LabelSuccess})
)

func observeDownload(path string, start time.Time, fetched bool) {
	downloadDuration.With(
		bgvmetrics.LabelPath, path,
		bgvmetrics.LabelSuccess, strconv.FormatBool(fetched),
	).Observe(time.Since(start).Seconds())
}
