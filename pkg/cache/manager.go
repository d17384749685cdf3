package cache

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/config"
	"github.com/bgviewer/binggallery/pkg/store"
)

// RequiredConcurrentWebConnections is how many connections to the
// image host the transport must allow: the calendar pool, the gallery
// slot, and one extra for a user-initiated save.
const RequiredConcurrentWebConnections = MaxDaysConnections + maxGalleryConnections + 1

// ErrNotInitialized is returned by every resolver and downloader
// entry point until Initialize has completed.
var ErrNotInitialized = errors.New("gallery core is not initialized")

// DateRange is the locally known span of dates with metadata.
type DateRange struct {
	Min, Max bing.Date
}

// Manager is the acquisition and caching core. One instance exists
// per process; the UI layers share it. All methods are safe for
// concurrent use.
type Manager struct {
	settings *config.Settings
	feed     bing.Client
	store    store.Store
	logger   log.Logger
	succeed  func()

	resolver *resolver
	gate     *accessGate
	slot     gallerySlot
	pool     *semaphore.Weighted

	initMu      sync.Mutex
	initialized bool

	rangeMu   sync.RWMutex
	dateRange DateRange

	batchMu sync.Mutex
	batch   *batchRequest
}

// Config carries the Manager's collaborators. Settings, Feed and
// Store are required; Transport and BaseURL default to a transport
// provisioned for RequiredConcurrentWebConnections against the
// public image host.
type Config struct {
	Settings  *config.Settings
	Feed      bing.Client
	Store     store.Store
	Transport http.RoundTripper
	BaseURL   string
	Logger    log.Logger

	// Succeed, if set, is called whenever a fetch completes without
	// bumping into trouble, so a backed-off rate limiter can creep its
	// limit up again.
	Succeed func()
}

// New assembles a Manager. Call Initialize before using it.
func New(cfg Config) (*Manager, error) {
	if cfg.Settings == nil || cfg.Feed == nil || cfg.Store == nil {
		return nil, errors.New("settings, feed and store must all be provided")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Transport == nil {
		cfg.Transport = &http.Transport{
			MaxConnsPerHost: RequiredConcurrentWebConnections,
		}
	}
	res, err := newResolver(cfg.Settings, &http.Client{Transport: cfg.Transport}, cfg.BaseURL, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		settings: cfg.Settings,
		feed:     cfg.Feed,
		store:    cfg.Store,
		logger:   cfg.Logger,
		succeed:  cfg.Succeed,
		resolver: res,
		gate:     newAccessGate(),
		pool:     semaphore.NewWeighted(MaxDaysConnections),
	}, nil
}

// Initialize reconciles local metadata against the live feed and
// publishes the session's date range. It runs the backfill at most
// once; calling it again is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return nil
	}

	if err := m.settings.EnsureDirs(); err != nil {
		return err
	}

	boot := &bootstrapper{feed: m.feed, store: m.store, logger: m.logger}
	dr, err := boot.run(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrapping metadata catalog")
	}

	m.rangeMu.Lock()
	m.dateRange = dr
	m.rangeMu.Unlock()
	m.initialized = true
	return nil
}

// IsInitialized reports whether Initialize has completed.
func (m *Manager) IsInitialized() bool {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.initialized
}

// Shutdown cancels any running calendar batch and releases the store.
func (m *Manager) Shutdown() error {
	m.batchMu.Lock()
	batch := m.batch
	m.batch = nil
	m.batchMu.Unlock()
	if batch != nil {
		batch.stop()
	}

	m.initMu.Lock()
	m.initialized = false
	m.initMu.Unlock()
	return m.store.Close()
}

// CurrentDateRange returns the locally known date span.
func (m *Manager) CurrentDateRange() (DateRange, error) {
	if !m.IsInitialized() {
		return DateRange{}, ErrNotInitialized
	}
	m.rangeMu.RLock()
	defer m.rangeMu.RUnlock()
	return m.dateRange, nil
}

// ImageInfo returns the metadata record for one date.
func (m *Manager) ImageInfo(ctx context.Context, d bing.Date) (bing.ImageRecord, error) {
	if !m.IsInitialized() {
		return bing.ImageRecord{}, ErrNotInitialized
	}
	return m.store.ReadOne(ctx, d)
}

// ImageInfos returns the metadata records between two dates,
// inclusive and in ascending order; the bounds may be given in either
// order.
func (m *Manager) ImageInfos(ctx context.Context, d1, d2 bing.Date) ([]bing.ImageRecord, error) {
	if !m.IsInitialized() {
		return nil, ErrNotInitialized
	}
	return m.store.ReadRange(ctx, d1, d2)
}

// ResolveGalleryImage produces the image for one record through the
// gallery path and returns its date together with the local path, or
// "" when no image could be produced. Rapidly issued calls pre-empt
// one another; only the most recent can succeed.
func (m *Manager) ResolveGalleryImage(ctx context.Context, rec bing.ImageRecord) (bing.Date, string, error) {
	if !m.IsInitialized() {
		return bing.Date{}, "", ErrNotInitialized
	}
	d, err := rec.Date()
	if err != nil {
		return bing.Date{}, "", nil
	}
	path, err := m.resolveGallery(ctx, rec, d)
	return d, path, err
}

// StartCalendarBatch produces images for a set of dates through the
// calendar path, reporting each outcome to handler. Any batch still
// running is cancelled first: none of its callbacks fire once this
// returns. The returned channel closes when the new batch completes.
func (m *Manager) StartCalendarBatch(ctx context.Context, dates []bing.Date, handler BatchResultFunc) (<-chan struct{}, error) {
	if !m.IsInitialized() {
		return nil, ErrNotInitialized
	}
	return m.startCalendarBatch(ctx, dates, handler)
}

// SaveImageCopy writes a copy of the record's image to dest: from the
// temp root if possible, else from the cache root (only when the
// cache holds full-quality copies), else by downloading the original
// straight to dest. It fails only when all three fail.
func (m *Manager) SaveImageCopy(ctx context.Context, rec bing.ImageRecord, dest string) error {
	if !m.IsInitialized() {
		return ErrNotInitialized
	}

	tempPath := m.resolver.tempPath(rec.StartDate)
	if err := copyFile(tempPath, dest); err == nil {
		return nil
	} else if !os.IsNotExist(errors.Cause(err)) {
		m.logger.Log("warning", "could not copy temp image", "err", err)
	}

	if m.settings.UseCacheHD {
		cachePath := m.resolver.cachePath(rec.StartDate)
		if err := copyFile(cachePath, dest); err == nil {
			return nil
		} else if !os.IsNotExist(errors.Cause(err)) {
			m.logger.Log("warning", "could not copy cached image", "err", err)
		}
	}

	// Last resort: pull the original straight to the destination,
	// bytes as served, no re-encode.
	if err := m.downloadTo(ctx, m.resolver.absURL(rec.URL), dest); err != nil {
		return err
	}
	m.fetchSucceeded()
	return nil
}

// fetchSucceeded reports a trouble-free fetch, letting a backed-off
// rate limiter creep its limit up again.
func (m *Manager) fetchSucceeded() {
	if m.succeed != nil {
		m.succeed()
	}
}

func (m *Manager) downloadTo(ctx context.Context, url, dest string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return errors.Wrap(err, "constructing image request")
	}
	resp, err := m.resolver.client.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "requesting image %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("image request %s returned %s", url, resp.Status)
	}
	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Wrapf(err, "writing %s", dest)
	}
	return out.Close()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
