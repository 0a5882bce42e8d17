package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserCapturer screenshots the visible viewport of a page in Chrome.
type BrowserCapturer struct {
	// PageURL is the page to open.
	PageURL string

	// ControlURL points at a running browser's DevTools websocket.
	// Empty launches a local headless Chrome.
	ControlURL string

	Width, Height int
	Timeout       time.Duration
}

func (b BrowserCapturer) Capture(ctx context.Context) (*RawCapture, error) {
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.Width <= 0 || b.Height <= 0 {
		b.Width, b.Height = 1366, 768
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	wsURL := b.ControlURL
	var lnch *launcher.Launcher
	if wsURL == "" {
		lnch = launcher.New().Headless(true)
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("capture: launch browser: %w", err)
		}
		wsURL = u
		defer lnch.Cleanup()
	}

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("capture: connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("capture: open tab: %w", err)
	}
	defer page.Close()

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.Width,
		Height:            b.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: set viewport: %w", err)
	}

	if err := page.Navigate(b.PageURL); err != nil {
		return nil, fmt.Errorf("capture: navigate %s: %w", b.PageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("capture: wait load: %w", err)
	}

	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: screenshot: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot: %w", err)
	}

	url, title := b.PageURL, ""
	if info, err := page.Info(); err == nil && info != nil {
		url, title = info.URL, info.Title
	}
	return newRawCapture(img, url, title), nil
}
