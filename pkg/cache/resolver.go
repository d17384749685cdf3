package cache

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/config"
	"github.com/bgviewer/binggallery/pkg/imagefile"
)

// fallbackSuffix is the resolution every image is published at even
// when the full-resolution source is missing; substituting it onto
// the record's base URL is the quality fallback.
const fallbackSuffix = "_1366x768.jpg"

// resolver decides whether a locally cached copy of a day's image is
// acceptable under the current quality settings, and if not, drives
// the network fetch (primary URL, then fallback resolution) into the
// temp root. Callers hold the date's access gate around every method.
type resolver struct {
	settings *config.Settings
	client   *http.Client
	base     *url.URL
	logger   log.Logger
}

func newResolver(settings *config.Settings, client *http.Client, baseURL string, logger log.Logger) (*resolver, error) {
	if baseURL == "" {
		baseURL = bing.DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing image base URL %q", baseURL)
	}
	return &resolver{settings: settings, client: client, base: base, logger: logger}, nil
}

func (r *resolver) tempPath(key string) string {
	return filepath.Join(r.settings.TempPath, key+imagefile.Ext)
}

func (r *resolver) cachePath(key string) string {
	return filepath.Join(r.settings.CachePath, key+imagefile.Ext)
}

// absURL resolves a feed-relative image path against the image host.
func (r *resolver) absURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return r.base.String() + ref
	}
	return r.base.ResolveReference(u).String()
}

// findValidLocalImage looks for an image for the date key that
// satisfies the quality settings, promoting a temp copy into the
// cache root when the settings call for one. It returns the path to
// serve and whether one was found. No network I/O happens here.
func (r *resolver) findValidLocalImage(key string) (string, bool) {
	cachePath := r.cachePath(key)
	tempPath := r.tempPath(key)

	if r.cacheCopyAcceptable(cachePath) {
		return cachePath, true
	}

	if !imagefile.Exists(tempPath) {
		return "", false
	}
	img, err := imagefile.Open(tempPath)
	if err != nil {
		// Not decodable; it will be overwritten by the next fetch.
		return "", false
	}

	if !r.settings.UseCache {
		return tempPath, true
	}

	// Promote into the cache root at the configured quality. The temp
	// copy stays put.
	if !r.settings.UseCacheHD {
		img = imagefile.Downscale(img)
	}
	if err := imagefile.Save(img, cachePath); err != nil {
		r.logger.Log("err", errors.Wrap(err, "promoting image to cache"))
		return "", false
	}
	return cachePath, true
}

// cacheCopyAcceptable reports whether the cache-root file can be
// served as-is: any decodable-or-not file when the cache holds
// downscaled copies, a sufficiently wide image when it holds
// full-quality ones.
func (r *resolver) cacheCopyAcceptable(cachePath string) bool {
	if !r.settings.UseCache || !imagefile.Exists(cachePath) {
		return false
	}
	if !r.settings.UseCacheHD {
		return true
	}
	width, err := imagefile.Width(cachePath)
	return err == nil && width >= imagefile.MinHDWidth
}

// downloadToTemp fetches the record's image into the temp root,
// trying the primary URL and then the fallback resolution (unless the
// primary already is the fallback resolution). It reports whether a
// fetch succeeded; the error is non-nil only when the fetch was cut
// short by ctx, which the caller must not mistake for a plain miss.
func (r *resolver) downloadToTemp(ctx context.Context, rec bing.ImageRecord) (bool, error) {
	dest := r.tempPath(rec.StartDate)
	// Whatever is there is stale or invalid; fetch overwrites it.
	os.Remove(dest)

	err := imagefile.FetchAndSave(ctx, r.client, r.absURL(rec.URL), dest)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	r.logger.Log("info", "primary image fetch failed", "startdate", rec.StartDate, "err", err)

	if strings.HasSuffix(strings.ToLower(rec.URL), fallbackSuffix) {
		return false, nil
	}
	err = imagefile.FetchAndSave(ctx, r.client, r.absURL(rec.URLBase+fallbackSuffix), dest)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	r.logger.Log("info", "fallback image fetch failed", "startdate", rec.StartDate, "err", err)
	return false, nil
}
