package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/bing/mock"
	"github.com/bgviewer/binggallery/pkg/imagefile"
	"github.com/bgviewer/binggallery/pkg/store"
)

func seedMonth(t *testing.T, st store.Store, first bing.Date, days int) []bing.Date {
	var dates []bing.Date
	var recs []bing.ImageRecord
	for i := 0; i < days; i++ {
		d := first.AddDays(i)
		dates = append(dates, d)
		recs = append(recs, mock.Record(d))
	}
	assert.NoError(t, st.SaveAll(context.Background(), recs))
	return dates
}

func TestCalendarBatchDownloadsEveryDate(t *testing.T) {
	var active, maxActive int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		for {
			max := atomic.LoadInt32(&maxActive)
			if n <= max || atomic.CompareAndSwapInt32(&maxActive, max, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		w.Write(testJPEG(t, 1920, 1080))
	}))
	defer srv.Close()

	st := store.NewMemory()
	dates := seedMonth(t, st, bing.Date{Year: 2014, Month: time.August, Day: 1}, 20)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	var mu sync.Mutex
	results := map[int]string{}
	done, err := m.StartCalendarBatch(context.Background(), dates, func(d bing.Date, ok bool, path string) {
		mu.Lock()
		defer mu.Unlock()
		assert.True(t, ok)
		results[d.Compact()] = path
	})
	assert.NoError(t, err)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("batch never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, len(dates))
	for _, d := range dates {
		path, ok := results[d.Compact()]
		assert.True(t, ok, "no result for %s", d)
		assert.True(t, imagefile.Exists(path))
	}
	assert.True(t, atomic.LoadInt32(&maxActive) <= MaxDaysConnections,
		"%d concurrent downloads, budget is %d", maxActive, MaxDaysConnections)
}

func TestCalendarBatchCoversRecordedSpan(t *testing.T) {
	// The batch queries the store by span, so recorded dates between
	// the requested ones are produced too.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testJPEG(t, 1920, 1080))
	}))
	defer srv.Close()

	st := store.NewMemory()
	dates := seedMonth(t, st, bing.Date{Year: 2014, Month: time.August, Day: 1}, 5)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	var count int32
	done, err := m.StartCalendarBatch(context.Background(), []bing.Date{dates[0], dates[4]}, func(d bing.Date, ok bool, path string) {
		atomic.AddInt32(&count, 1)
	})
	assert.NoError(t, err)
	<-done
	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
}

func TestCalendarBatchReportsMisses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	st := store.NewMemory()
	dates := seedMonth(t, st, bing.Date{Year: 2014, Month: time.August, Day: 1}, 3)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	var mu sync.Mutex
	var misses int
	done, err := m.StartCalendarBatch(context.Background(), dates, func(d bing.Date, ok bool, path string) {
		mu.Lock()
		defer mu.Unlock()
		if !ok {
			misses++
		}
	})
	assert.NoError(t, err)
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(dates), misses)
}

func TestCalendarBatchValidatesArguments(t *testing.T) {
	m := newTestManager(t, testSettings(t), deadFeed(), store.NewMemory(), "")
	_, err := m.StartCalendarBatch(context.Background(), nil, func(bing.Date, bool, string) {})
	assert.Error(t, err)
	_, err = m.StartCalendarBatch(context.Background(), []bing.Date{bing.Today()}, nil)
	assert.Error(t, err)
}

// Starting a new batch cancels the old one outright: its downloads are
// aborted and none of its callbacks fire once StartCalendarBatch has
// returned.
func TestCalendarBatchSuperseded(t *testing.T) {
	june := bing.Date{Year: 2014, Month: time.June, Day: 1}
	july := bing.Date{Year: 2014, Month: time.July, Day: 1}

	juneArrived := make(chan struct{})
	var arrivedOnce int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "201406") {
			if atomic.CompareAndSwapInt32(&arrivedOnce, 0, 1) {
				close(juneArrived)
			}
			// June downloads only ever end by being aborted.
			<-r.Context().Done()
			return
		}
		w.Write(testJPEG(t, 1920, 1080))
	}))
	defer srv.Close()

	st := store.NewMemory()
	juneDates := seedMonth(t, st, june, 10)
	julyDates := seedMonth(t, st, july, 10)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	var juneResults int32
	juneDone, err := m.StartCalendarBatch(context.Background(), juneDates, func(d bing.Date, ok bool, path string) {
		atomic.AddInt32(&juneResults, 1)
	})
	assert.NoError(t, err)

	select {
	case <-juneArrived:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started downloading")
	}

	var mu sync.Mutex
	julyResults := map[int]bool{}
	julyDone, err := m.StartCalendarBatch(context.Background(), julyDates, func(d bing.Date, ok bool, path string) {
		mu.Lock()
		defer mu.Unlock()
		julyResults[d.Compact()] = ok
	})
	assert.NoError(t, err)

	for _, done := range []<-chan struct{}{julyDone, juneDone} {
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			t.Fatal("batch never finished")
		}
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&juneResults))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, julyResults, len(julyDates))
	for _, ok := range julyResults {
		assert.True(t, ok)
	}
}

func TestCalendarBatchReleasedWhenComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testJPEG(t, 1920, 1080))
	}))
	defer srv.Close()

	st := store.NewMemory()
	dates := seedMonth(t, st, bing.Date{Year: 2014, Month: time.August, Day: 1}, 3)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	done, err := m.StartCalendarBatch(context.Background(), dates, func(bing.Date, bool, string) {})
	assert.NoError(t, err)
	<-done

	// The finished batch is dereferenced, not held until superseded.
	m.batchMu.Lock()
	assert.Nil(t, m.batch)
	m.batchMu.Unlock()
}

func TestCalendarBatchCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	st := store.NewMemory()
	dates := seedMonth(t, st, bing.Date{Year: 2014, Month: time.August, Day: 1}, 10)
	m := newTestManager(t, testSettings(t), deadFeed(), st, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := m.StartCalendarBatch(ctx, dates, func(d bing.Date, ok bool, path string) {})
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("cancelled batch never finished")
	}
}
