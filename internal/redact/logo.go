package redact

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// SampleDocument draws a small mock page: a light sheet with rows of grey
// text bars. Used by the server banner and as a fixture for the CLI's dry run.
func SampleDocument(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 240, G: 244, B: 248, A: 255}), image.Point{}, xdraw.Src)

	line := image.NewUniform(color.RGBA{R: 120, G: 130, B: 145, A: 255})
	margin := w / 10
	rowH := max(h/12, 2)
	for y := rowH * 2; y+rowH/2 < h-rowH; y += rowH * 2 {
		end := w - margin
		if (y/rowH)%3 == 0 {
			end = w / 2
		}
		xdraw.Draw(img, image.Rect(margin, y, end, y+rowH/2+1), line, image.Point{}, xdraw.Src)
	}
	return img
}

// RedactedSample is SampleDocument with two rows blacked out through the
// editor, exactly as a user would do it.
func RedactedSample(w, h int) *image.RGBA {
	e := NewEditorWithCaps(SampleDocument(w, h), w, h)
	rowH := float64(max(h/12, 2))
	e.Replay(Drag(float64(w)/10, rowH*4-1, float64(w)*0.7, rowH/2+3))
	e.Replay(Drag(float64(w)/10, rowH*8-1, float64(w)*0.5, rowH/2+3))
	return e.ExportFlattened()
}
