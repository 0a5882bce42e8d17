// Package redact implements the screenshot redaction editor: a raster canvas,
// a list of committed opaque rectangles and at most one in-progress drag.
//
// The editor is event driven. Every mutation takes the editor lock for the
// whole mutate+redraw step, so a redraw never observes a half-updated draft.
package redact

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

const (
	// MaxWidth and MaxHeight cap the capture at load time.
	MaxWidth  = 1920
	MaxHeight = 1080

	// MinExtent is the drag size (exclusive) below which a rectangle is
	// treated as an accidental click.
	MinExtent = 4
)

var fill = image.NewUniform(color.Black)

// Point is a pointer position in canvas pixels.
type Point struct {
	X, Y float64
}

// Rect is a redaction rectangle. Committed rectangles always have W, H >= 0;
// a draft may carry negative extents while the pointer is left of or above
// the drag origin.
type Rect struct {
	X, Y, W, H float64
}

// Normalize folds negative extents so the rectangle is anchored at its true
// top-left corner.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// pixels returns the covered pixel rectangle. Partial pixels are covered in
// full so no sliver of the redacted area survives.
func (r Rect) pixels() image.Rectangle {
	n := r.Normalize()
	return image.Rect(
		int(math.Floor(n.X)),
		int(math.Floor(n.Y)),
		int(math.Ceil(n.X+n.W)),
		int(math.Ceil(n.Y+n.H)),
	)
}

// Editor owns one editing session: base image, committed rectangles and the
// optional draft. Create a new Editor for every capture.
type Editor struct {
	mu      sync.Mutex
	base    *image.RGBA
	canvas  *image.RGBA
	rects   []Rect
	draft   *Rect
	redraws int
}

// NewEditor scales src down to the MaxWidth x MaxHeight caps and opens an
// editing session on it.
func NewEditor(src image.Image) *Editor {
	return NewEditorWithCaps(src, MaxWidth, MaxHeight)
}

// NewEditorWithCaps is NewEditor with explicit caps.
func NewEditorWithCaps(src image.Image, maxW, maxH int) *Editor {
	b := src.Bounds()
	w, h := ScaleDims(b.Dx(), b.Dy(), maxW, maxH)

	var base *image.RGBA
	if w == b.Dx() && h == b.Dy() {
		base = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Copy(base, image.Point{}, src, b, xdraw.Src, nil)
	} else {
		nrgba := imaging.Resize(src, w, h, imaging.Linear)
		base = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Copy(base, image.Point{}, nrgba, nrgba.Bounds(), xdraw.Src, nil)
	}

	e := &Editor{base: base}
	e.redraw()
	return e
}

// ScaleDims applies the load-time clamp: first fit the width, then fit the
// (possibly already reduced) height, each step scaling both dimensions.
// Fractional results are truncated the way a canvas size assignment does.
func ScaleDims(width, height, maxW, maxH int) (int, int) {
	w, h := float64(width), float64(height)

	// Each step pins the capped side to the cap exactly and scales the other
	// side by the same ratio.
	if w > float64(maxW) {
		h = h * float64(maxW) / w
		w = float64(maxW)
	}
	if h > float64(maxH) {
		w = w * float64(maxH) / h
		h = float64(maxH)
	}

	return max(int(w), 1), max(int(h), 1)
}

// Size returns the canvas dimensions.
func (e *Editor) Size() (int, int) {
	b := e.base.Bounds()
	return b.Dx(), b.Dy()
}

// StartDraft opens a zero-extent draft at p clamped into the canvas.
// It is a no-op returning false while another draft is open.
func (e *Editor) StartDraft(p Point) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft != nil {
		return false
	}

	w, h := e.Size()
	e.draft = &Rect{
		X: clamp(p.X, 0, float64(w)),
		Y: clamp(p.Y, 0, float64(h)),
	}
	e.redraw()
	return true
}

// UpdateDraft sets the draft extent to p minus the drag origin. Extents may
// be negative.
func (e *Editor) UpdateDraft(p Point) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return false
	}
	e.draft.W = p.X - e.draft.X
	e.draft.H = p.Y - e.draft.Y
	e.redraw()
	return true
}

// CommitDraft normalizes the draft and appends it when both extents exceed
// MinExtent. The draft is cleared either way.
func (e *Editor) CommitDraft() (Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return Rect{}, false
	}

	r := e.draft.Normalize()
	e.draft = nil

	committed := r.W > MinExtent && r.H > MinExtent
	if committed {
		e.rects = append(e.rects, r)
	}
	e.redraw()
	return r, committed
}

// Clear drops every committed rectangle and any open draft.
func (e *Editor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rects = nil
	e.draft = nil
	e.redraw()
}

// Drafting reports whether a draft is open.
func (e *Editor) Drafting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft != nil
}

// Rects returns a copy of the committed rectangles.
func (e *Editor) Rects() []Rect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Rect(nil), e.rects...)
}

// Canvas returns a copy of the live view, including the draft.
func (e *Editor) Canvas() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRGBA(e.canvas)
}

// Redraws reports how many times the canvas was repainted.
func (e *Editor) Redraws() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redraws
}

// ExportFlattened rasterizes the base image with every committed rectangle
// into a new bitmap. An open draft is not part of the export. The result
// carries no trace of the rectangle list.
func (e *Editor) ExportFlattened() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := cloneRGBA(e.base)
	for _, r := range e.rects {
		paint(out, r)
	}
	return out
}

// redraw repaints base, committed rectangles, then the draft. Caller holds mu.
func (e *Editor) redraw() {
	if e.canvas == nil {
		e.canvas = image.NewRGBA(e.base.Bounds())
	}
	copy(e.canvas.Pix, e.base.Pix)

	for _, r := range e.rects {
		paint(e.canvas, r)
	}
	if e.draft != nil {
		paint(e.canvas, *e.draft)
	}
	e.redraws++
}

func paint(dst *image.RGBA, r Rect) {
	area := r.pixels().Intersect(dst.Bounds())
	if area.Empty() {
		return
	}
	xdraw.Draw(dst, area, fill, image.Point{}, xdraw.Src)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
