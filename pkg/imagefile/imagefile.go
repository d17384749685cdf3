// Package imagefile reads, writes and converts the image files the
// viewer keeps on disk. Every file we write is JPEG, whatever the
// feed served, so a root holds at most one file per day.
package imagefile

import (
	"context"
	"image"
	"net/http"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	// Ext is the extension of every image file the viewer writes.
	Ext = ".jpg"

	// CacheWidth and CacheHeight are the fixed canvas a cache copy is
	// downscaled to when the user declines the full-quality cache.
	CacheWidth  = 800
	CacheHeight = 450

	// MinHDWidth is the narrowest image accepted as a full-quality
	// cache copy.
	MinHDWidth = 1366

	jpegQuality = 90
)

// FetchAndSave performs one HTTP GET for url, decodes the body as an
// image and re-encodes it as JPEG at dest. Transport errors, bad
// statuses and undecodable bodies are all plain errors; the caller
// decides whether an error was its own cancellation.
func FetchAndSave(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return errors.Wrap(err, "constructing image request")
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "requesting image %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("image request %s returned %s", url, resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "decoding image %s", url)
	}
	return Save(img, dest)
}

// Save re-encodes img as JPEG at path, overwriting any previous file.
func Save(img image.Image, path string) error {
	return errors.Wrapf(imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)), "saving image %s", path)
}

// Downscale resizes img onto the fixed low-quality cache canvas using
// Lanczos resampling. The canvas is filled edge to edge; the source
// aspect ratio is not preserved, matching how cache copies have
// always been written.
func Downscale(img image.Image) image.Image {
	return imaging.Resize(img, CacheWidth, CacheHeight, imaging.Lanczos)
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	return img, errors.Wrapf(err, "opening image %s", path)
}

// Width reads just enough of the file at path to report the image
// width; it fails if the file is missing or not a decodable image.
func Width(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, errors.Wrapf(err, "reading image header %s", path)
	}
	return cfg.Width, nil
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
