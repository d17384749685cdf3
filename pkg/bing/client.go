package bing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the host serving both the daily image archive
	// feed and the image files it points at.
	DefaultBaseURL = "https://www.bing.com"

	archivePath = "/HPImageArchive.aspx"

	// marketUS is the only market queried; the images are the same
	// worldwide, the captions are not.
	marketUS = "en-US"
)

// Client fetches batches of daily image metadata from the archive
// feed. It is an interface so we can wrap it in instrumentation and
// write fake implementations for tests.
//
// FetchBatch asks for count records starting offset days back from
// the feed's own notion of today. The feed may return fewer records
// than asked for (that is the most it will serve per call), or more
// (only when count overshoots the feed's oldest day, in which case
// the reply is everything it has left). A transport or decode
// failure is an error; callers treat it the same as an empty batch.
type Client interface {
	FetchBatch(ctx context.Context, offset, count int) ([]ImageRecord, error)
}

// archiveReply is the feed's JSON envelope.
type archiveReply struct {
	Images []ImageRecord `json:"images"`
}

type remote struct {
	base   *url.URL
	client *http.Client
	logger log.Logger
}

// NewClient returns a Client talking to the archive feed at base
// (DefaultBaseURL if empty) over the given transport.
func NewClient(base string, rt http.RoundTripper, logger log.Logger) (Client, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing feed base URL %q", base)
	}
	return &remote{
		base:   u,
		client: &http.Client{Transport: rt},
		logger: logger,
	}, nil
}

func (r *remote) FetchBatch(ctx context.Context, offset, count int) ([]ImageRecord, error) {
	if offset < 0 {
		return nil, errors.New("offset must be >= 0")
	}
	if count < 1 {
		return nil, errors.New("count must be >= 1")
	}

	u := *r.base
	u.Path = archivePath
	q := url.Values{}
	q.Set("format", "js")
	q.Set("idx", strconv.Itoa(offset))
	q.Set("n", strconv.Itoa(count))
	q.Set("mkt", marketUS)
	u.RawQuery = q.Encode()

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "constructing feed request")
	}
	resp, err := r.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "requesting image archive")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("image archive returned %s", resp.Status)
	}

	var reply archiveReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, errors.Wrap(err, "decoding image archive reply")
	}
	return reply.Images, nil
}
