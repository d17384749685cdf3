package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiter throttles all requests to the image host behind a
// single token bucket.
//
// Use `*RateLimiter.RoundTripper(tx)` to obtain a rate limited HTTP
// transport. The RoundTripper reacts to a `HTTP 429 Too many
// requests` response by reducing the limit. It will only do so once
// per obtained RoundTripper, so that concurrent requests don't *also*
// reduce the limit.
//
// Call `*RateLimiter.Recover()` when an operation has succeeded
// without incident, which will increase the rate limit modestly back
// towards the given ideal.
type RateLimiter struct {
	RPS     float64
	Burst   int
	Logger  log.Logger
	limiter *rate.Limiter
	mu      sync.Mutex
}

func (l *RateLimiter) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}
	if limit > l.RPS {
		return l.RPS
	}
	return limit
}

func (l *RateLimiter) get() *rate.Limiter {
	if l.limiter == nil {
		l.limiter = rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	}
	return l.limiter
}

// backOff reduces the limit. Usually this isn't called directly,
// since a RoundTripper responds to `HTTP 429` by doing it for you.
func (l *RateLimiter) backOff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter := l.get()
	oldLimit := float64(limiter.Limit())
	newLimit := l.clip(oldLimit / backOffBy)
	if oldLimit != newLimit && l.Logger != nil {
		l.Logger.Log("info", "reducing rate limit", "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

// Recover should be called when a use of a RoundTripper has
// succeeded, to bump the limit back up again.
func (l *RateLimiter) Recover() {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter := l.get()
	oldLimit := float64(limiter.Limit())
	newLimit := l.clip(oldLimit * recoverBy)
	if newLimit != oldLimit && l.Logger != nil {
		l.Logger.Log("info", "increasing rate limit", "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

// RoundTripper wraps tx with the shared rate limit.
func (l *RateLimiter) RoundTripper(tx http.RoundTripper) http.RoundTripper {
	l.mu.Lock()
	defer l.mu.Unlock()

	var reduceOnce sync.Once
	return &roundTripRateLimiter{
		rl: l.get(),
		tx: tx,
		slowDown: func() {
			reduceOnce.Do(l.backOff)
		},
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait errors out if the request cannot be processed within
	// the deadline. This is pre-emptive, instead of waiting the
	// entire duration.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.slowDown()
	}
	return resp, err
}
