package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"snapreport/internal/ingest"
	"snapreport/internal/reports"
	"snapreport/pkg/utils"
)

const (
	minThumb = 16
	maxThumb = 1920
)

var errUnrenderable = errors.New("screenshot cannot be rendered")

type rendered struct {
	data []byte
	mime string
}

// screenshotKey is the cache key for one rendition of a report screenshot.
func screenshotKey(id string, size int, format string) string {
	return fmt.Sprintf("shot:%s:%d:%s", id, size, format)
}

// ForgetScreenshots drops every cached rendition of the given reports.
func (a *API) ForgetScreenshots(reportIDs []string) {
	if a.Cache == nil {
		return
	}
	for _, id := range reportIDs {
		a.Cache.DeletePrefix("shot:" + id + ":")
	}
}

// ServeScreenshot handles GET /reports/{id}/screenshot?size=N&format=png|jpeg.
// Without size the stored bytes are returned unchanged. Thumbnails are
// rendered once per key; concurrent misses share one render.
func (a *API) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	size := utils.ParseInt(q.Get("size"), 0, 0, maxThumb)
	if size > 0 && size < minThumb {
		size = minThumb
	}
	format := strings.ToLower(q.Get("format"))
	if format == "jpg" {
		format = "jpeg"
	}
	if format != "jpeg" {
		format = "png"
	}

	key := screenshotKey(id, size, format)
	// The flight outlives whichever caller started it.
	ctx := context.WithoutCancel(r.Context())

	v, err, _ := a.requestGroup.Do(key, func() (any, error) {
		if a.Cache != nil {
			if cached, ok := a.Cache.Get(key); ok {
				return rendered{data: cached, mime: "image/" + format}, nil
			}
		}

		raw, ct, err := a.Reports.Screenshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return rendered{data: raw, mime: ct}, nil
		}

		if err := ingest.CheckDimensions(raw); err != nil {
			return nil, errUnrenderable
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode screenshot: %w", err)
		}
		buf, _, _, err := utils.ProcessImage(img, utils.ProcessOptions{Mode: "fit", Size: size, Format: format, Quality: 85})
		if err != nil {
			return nil, fmt.Errorf("render thumbnail: %w", err)
		}

		out := buf.Bytes()
		if a.Cache != nil {
			a.Cache.Set(key, out)
		}
		return rendered{data: out, mime: "image/" + format}, nil
	})

	if errors.Is(err, reports.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Screenshot not found.")
		return
	}
	if errors.Is(err, errUnrenderable) {
		utils.WriteError(w, http.StatusUnprocessableEntity, utils.ErrImageProcessingFailed, "Screenshot cannot be resized.")
		return
	}
	if err != nil {
		internalError(w, r, "serve screenshot", err)
		return
	}

	out := v.(rendered)
	serveWithETag(w, r, out.data, out.mime)
}

// serveWithETag writes data with an ETag and answers 304 on a match.
func serveWithETag(w http.ResponseWriter, r *http.Request, data []byte, mimeType string) {
	hash := sha256.Sum256(data)
	etag := `"` + hex.EncodeToString(hash[:16]) + `"`

	if mimeType == "" {
		mimeType = "image/png"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("ETag", etag)

	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Write(data)
}
