package capture

import (
	"context"
	"fmt"
	"image"

	"snapreport/internal/redact"
)

// Session ties one capture to one editor. A recapture replaces both.
type Session struct {
	Raw    *RawCapture
	Editor *redact.Editor
}

// Open captures with c and loads the result into a fresh editor, applying
// the load-time scale-down.
func Open(ctx context.Context, c Capturer) (*Session, error) {
	raw, err := c.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if raw.Image == nil {
		return nil, fmt.Errorf("capture: empty image")
	}
	return &Session{Raw: raw, Editor: redact.NewEditor(raw.Image)}, nil
}

// Flatten exports the redacted bitmap.
func (s *Session) Flatten() image.Image {
	return s.Editor.ExportFlattened()
}

// DataURL exports the redacted bitmap as a data URL.
func (s *Session) DataURL(format Format, quality int) (string, error) {
	return EncodeDataURL(s.Flatten(), format, quality)
}
