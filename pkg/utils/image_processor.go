package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

type ProcessOptions struct {
	Mode    string // "fit" or "original"
	Size    int    // bounding box edge for "fit"
	Format  string // "png" or "jpeg"
	Quality int    // jpeg only
}

// ProcessImage renders img according to opts and returns the encoded bytes
// with the final dimensions. "fit" never upscales.
func ProcessImage(img image.Image, opts ProcessOptions) (*bytes.Buffer, int, int, error) {
	finalImg := img

	if opts.Mode == "fit" && opts.Size > 0 {
		if img.Bounds().Dx() > opts.Size || img.Bounds().Dy() > opts.Size {
			finalImg = imaging.Fit(img, opts.Size, opts.Size, imaging.Lanczos)
		}
	}

	buf := new(bytes.Buffer)
	var err error
	switch opts.Format {
	case "", "png":
		err = png.Encode(buf, finalImg)
	case "jpeg", "jpg":
		q := opts.Quality
		if q <= 0 {
			q = 85
		}
		err = jpeg.Encode(buf, finalImg, &jpeg.Options{Quality: q})
	default:
		err = fmt.Errorf("unsupported output format %q", opts.Format)
	}

	return buf, finalImg.Bounds().Dx(), finalImg.Bounds().Dy(), err
}
