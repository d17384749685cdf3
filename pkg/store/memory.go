package store

import (
	"context"
	"sync"

	"github.com/bgviewer/binggallery/pkg/bing"
)

// Memory is an in-process Store, mainly for tests.
type Memory struct {
	mu      sync.RWMutex
	records map[int]bing.ImageRecord
}

func NewMemory() *Memory {
	return &Memory{records: map[int]bing.ImageRecord{}}
}

func (m *Memory) ReadOne(ctx context.Context, d bing.Date) (bing.ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[d.Compact()]
	if !ok {
		return bing.ImageRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ReadRange(ctx context.Context, lo, hi bing.Date) ([]bing.ImageRecord, error) {
	l, h := lo.Compact(), hi.Compact()
	if l > h {
		l, h = h, l
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []bing.ImageRecord
	for key, rec := range m.records {
		if key >= l && key <= h {
			out = append(out, rec)
		}
	}
	bing.SortRecords(out)
	return out, nil
}

func (m *Memory) EarliestDate(ctx context.Context) (bing.Date, error) {
	return m.boundary(func(candidate, best int) bool { return candidate < best })
}

func (m *Memory) LatestDate(ctx context.Context) (bing.Date, error) {
	return m.boundary(func(candidate, best int) bool { return candidate > best })
}

func (m *Memory) boundary(better func(candidate, best int) bool) (bing.Date, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := 0
	for key := range m.records {
		if key <= junkKeyFloor {
			continue
		}
		if best == 0 || better(key, best) {
			best = key
		}
	}
	if best == 0 {
		return bing.Date{}, ErrNotFound
	}
	return bing.DateFromCompact(best)
}

func (m *Memory) SaveAll(ctx context.Context, records []bing.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		d, err := rec.Date()
		if err != nil {
			continue
		}
		m.records[d.Compact()] = rec
	}
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Store = &Memory{}
