package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dataURL(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func TestValidateText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    string
		wantErr error
	}{
		{"empty", "", "", ErrInvalidInput},
		{"whitespace only", "  \n\t ", "", ErrInvalidInput},
		{"trimmed", "  button is broken \n", "button is broken", nil},
		{"exactly 500", strings.Repeat("a", 500), strings.Repeat("a", 500), nil},
		{"500 after trimming", "  " + strings.Repeat("a", 500) + "  ", strings.Repeat("a", 500), nil},
		{"501", strings.Repeat("a", 501), "", ErrInvalidInput},
		{"500 multibyte", strings.Repeat("é", 500), strings.Repeat("é", 500), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Validate(Payload{Text: tt.text}, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got.Text != tt.want {
				t.Fatalf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestValidateScreenshot(t *testing.T) {
	t.Parallel()

	pngBytes := encodePNG(t)
	ceiling := int64(len(pngBytes))

	tests := []struct {
		name     string
		url      string
		max      int64
		wantErr  error
		wantType string
	}{
		{"png at ceiling", dataURL("image/png", pngBytes), ceiling, nil, "image/png"},
		{"png one byte over", dataURL("image/png", pngBytes), ceiling - 1, ErrPayloadTooLarge, ""},
		{"jpg alias", dataURL("image/jpg", pngBytes), 0, nil, "image/png"},
		{"upper case type", dataURL("IMAGE/PNG", pngBytes), 0, nil, "image/png"},
		{"gif", dataURL("image/gif", encodeGIF(t)), 0, ErrInvalidImageType, ""},
		{"svg", dataURL("image/svg+xml", []byte("<svg/>")), 0, ErrInvalidImageType, ""},
		{"not base64", "data:image/png;base64,@@@###", 0, ErrInvalidImageFormat, ""},
		{"no comma", "data:image/png;base64", 0, ErrInvalidImageFormat, ""},
		{"no data scheme", "image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes), 0, ErrInvalidImageFormat, ""},
		{"not base64 encoded", "data:image/png," + string(pngBytes[:4]), 0, ErrInvalidImageFormat, ""},
		{"unpadded", "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(pngBytes), 0, nil, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Validate(Payload{Text: "x", ScreenshotDataURL: tt.url}, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !bytes.Equal(got.Screenshot, pngBytes) {
				t.Fatalf("screenshot bytes differ from input")
			}
			if got.ScreenshotType != tt.wantType {
				t.Fatalf("ScreenshotType = %q, want %q", got.ScreenshotType, tt.wantType)
			}
		})
	}
}

func TestValidateDefaultCeiling(t *testing.T) {
	t.Parallel()

	buf := make([]byte, DefaultMaxImageBytes)
	copy(buf, encodePNG(t))

	if _, err := Validate(Payload{Text: "x", ScreenshotDataURL: dataURL("image/png", buf)}, 0); err != nil {
		t.Fatalf("image at default ceiling: %v", err)
	}

	buf = append(buf, 0)
	if _, err := Validate(Payload{Text: "x", ScreenshotDataURL: dataURL("image/png", buf)}, 0); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("one byte over default ceiling: err = %v", err)
	}
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()

	got, err := Validate(Payload{
		Text:   "broken",
		URL:    "  https://example.com/a  ",
		Title:  `<b>Checkout</b> & <script>alert(1)</script>Pay`,
		Client: &ClientInfo{Browser: "Chrome 120", OS: "macOS"},
	}, 0)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.URL != "https://example.com/a" {
		t.Fatalf("URL = %q", got.URL)
	}
	if got.Title != "Checkout & Pay" {
		t.Fatalf("Title = %q", got.Title)
	}
	if got.ClientJSON == nil || *got.ClientJSON != `{"browser":"Chrome 120","os":"macOS"}` {
		t.Fatalf("ClientJSON = %v", got.ClientJSON)
	}
	if got.Screenshot != nil {
		t.Fatalf("Screenshot set without data URL")
	}
}

func encodeGray(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestValidateDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"at pixel budget", encodeGray(t, 3840, 2160), nil},
		{"over pixel budget", encodeGray(t, 4000, 3000), ErrInvalidImageFormat},
		{"tall strip over budget", encodeGray(t, 1, MaxPixels+1), ErrInvalidImageFormat},
		{"not an image", []byte("plain text pretending to be a png"), ErrInvalidImageFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if len(tt.data) >= DefaultMaxImageBytes {
				t.Fatalf("fixture is %d bytes, exceeds the byte ceiling", len(tt.data))
			}
			_, err := Validate(Payload{Text: "x", ScreenshotDataURL: dataURL("image/png", tt.data)}, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
