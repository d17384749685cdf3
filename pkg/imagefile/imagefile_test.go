package imagefile

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestSaveAndWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20140828.jpg")
	assert.NoError(t, Save(testImage(1920, 1080), path))
	assert.True(t, Exists(path))

	w, err := Width(path)
	assert.NoError(t, err)
	assert.Equal(t, 1920, w)

	img, err := Open(path)
	assert.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 1080, img.Bounds().Dy())
}

func TestWidthErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Width(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

func TestDownscale(t *testing.T) {
	small := Downscale(testImage(1920, 1080))
	assert.Equal(t, CacheWidth, small.Bounds().Dx())
	assert.Equal(t, CacheHeight, small.Bounds().Dy())

	// The canvas is fixed even when the source aspect ratio differs.
	small = Downscale(testImage(1080, 1920))
	assert.Equal(t, CacheWidth, small.Bounds().Dx())
	assert.Equal(t, CacheHeight, small.Bounds().Dy())
}

func TestFetchAndSave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			// Whatever format the server hands out, the saved file is JPEG.
			var buf bytes.Buffer
			assert.NoError(t, png.Encode(&buf, testImage(64, 36)))
			w.Write(buf.Bytes())
		case "/garbage.jpg":
			w.Write([]byte("this is not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := &http.Client{}

	dest := filepath.Join(dir, "ok.jpg")
	assert.NoError(t, FetchAndSave(context.Background(), client, srv.URL+"/ok.png", dest))
	w, err := Width(dest)
	assert.NoError(t, err)
	assert.Equal(t, 64, w)

	err = FetchAndSave(context.Background(), client, srv.URL+"/garbage.jpg", filepath.Join(dir, "bad.jpg"))
	assert.Error(t, err)

	err = FetchAndSave(context.Background(), client, srv.URL+"/gone.jpg", filepath.Join(dir, "gone.jpg"))
	assert.Error(t, err)
}
