// Package capture obtains raw screenshots, hands them to the redaction
// editor and turns the flattened result into a transportable data URL.
package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// RawCapture is an immutable bitmap with its native size and the page it
// was taken from.
type RawCapture struct {
	Image  image.Image
	Width  int
	Height int
	URL    string
	Title  string
}

// Capturer produces one RawCapture per call.
type Capturer interface {
	Capture(ctx context.Context) (*RawCapture, error)
}

func newRawCapture(img image.Image, url, title string) *RawCapture {
	b := img.Bounds()
	return &RawCapture{Image: img, Width: b.Dx(), Height: b.Dy(), URL: url, Title: title}
}

// FileCapturer loads a screenshot that was taken outside this process.
type FileCapturer struct {
	Path  string
	URL   string
	Title string
}

func (f FileCapturer) Capture(ctx context.Context) (*RawCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", f.Path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("capture: decode %s: %w", f.Path, err)
	}
	return newRawCapture(img, f.URL, f.Title), nil
}
