package mock

import (
	"context"

	"github.com/bgviewer/binggallery/pkg/bing"
)

type Client struct {
	FetchBatchFn func(offset, count int) ([]bing.ImageRecord, error)
}

func (m *Client) FetchBatch(ctx context.Context, offset, count int) ([]bing.ImageRecord, error) {
	return m.FetchBatchFn(offset, count)
}

var _ bing.Client = &Client{}

// Archive fabricates a feed holding one record per day for the days
// days ending at anchor, newest first, the way the live feed pages.
type Archive struct {
	Anchor bing.Date
	Days   int

	// Cap, if non-zero, is the most records a single FetchBatch call
	// returns, mimicking the live feed's per-call limit.
	Cap int

	// Calls counts FetchBatch invocations.
	Calls int
}

func (a *Archive) FetchBatch(ctx context.Context, offset, count int) ([]bing.ImageRecord, error) {
	a.Calls++
	if a.Cap > 0 && count > a.Cap {
		count = a.Cap
	}
	var out []bing.ImageRecord
	for i := 0; i < count; i++ {
		day := offset + i
		if day >= a.Days {
			break
		}
		out = append(out, Record(a.Anchor.AddDays(-day)))
	}
	return out, nil
}

var _ bing.Client = &Archive{}

// Record fabricates a plausible feed record for a day.
func Record(d bing.Date) bing.ImageRecord {
	key := d.CompactString()
	return bing.ImageRecord{
		StartDate:     key,
		URL:           "/az/hprichbg/rb/Img" + key + "_1920x1080.jpg",
		URLBase:       "/az/hprichbg/rb/Img" + key,
		Copyright:     "Image " + key + " (© Example)",
		CopyrightLink: "https://www.bing.com/search?q=" + key,
	}
}
