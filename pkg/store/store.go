package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
)

// ErrNotFound is returned when no metadata is recorded for the date
// (or, for the earliest/latest queries, when the store is empty).
var ErrNotFound = errors.New("no metadata recorded")

// Store is the metadata store the acquisition core reads and writes:
// one ImageRecord per day, keyed by the compact date. Implementations
// must be safe for concurrent use.
type Store interface {
	// ReadOne returns the record for a date, or ErrNotFound.
	ReadOne(ctx context.Context, d bing.Date) (bing.ImageRecord, error)

	// ReadRange returns the records between lo and hi inclusive,
	// ascending by date. The bounds are swapped if reversed. Dates in
	// the span with no record are simply absent from the result.
	ReadRange(ctx context.Context, lo, hi bing.Date) ([]bing.ImageRecord, error)

	// EarliestDate and LatestDate report the bounds of the recorded
	// span, or ErrNotFound for an empty store.
	EarliestDate(ctx context.Context) (bing.Date, error)
	LatestDate(ctx context.Context) (bing.Date, error)

	// SaveAll upserts the records in one transaction; either all of
	// them land or none do. Records whose start date does not parse
	// are skipped rather than persisted.
	SaveAll(ctx context.Context, records []bing.ImageRecord) error

	Close() error
}
