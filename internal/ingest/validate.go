// Package ingest validates report submissions before anything is stored.
// Every function here is pure: no I/O, no storage, no clock.
package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"snapreport/internal/redact"
	"snapreport/pkg/utils"
)

const (
	// MaxTextLen bounds report and comment text after trimming, in characters.
	MaxTextLen = 500

	// DefaultMaxImageBytes is the decoded screenshot ceiling.
	DefaultMaxImageBytes = 5242880

	// MaxPixels bounds the decoded width*height of a screenshot. A few
	// kilobytes of compressed PNG can otherwise claim gigabytes of pixels.
	MaxPixels = redact.MaxWidth * redact.MaxHeight * 4

	maxTitleLen = 300
	maxURLLen   = 2048
)

var (
	ErrInvalidInput       = errors.New("ingest: invalid input")
	ErrInvalidImageFormat = errors.New("ingest: invalid image format")
	ErrInvalidImageType   = errors.New("ingest: invalid image type")
	ErrPayloadTooLarge    = errors.New("ingest: image too large")
)

// allowedTypes are the declared MIME types a screenshot may carry.
var allowedTypes = map[string]string{
	"image/png":  "image/png",
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
}

var strict = bluemonday.StrictPolicy()

// ClientInfo describes the submitting browser.
type ClientInfo struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
}

// Payload is the POST /reports body.
type Payload struct {
	Text              string      `json:"text"`
	URL               string      `json:"url"`
	Title             string      `json:"title"`
	ScreenshotDataURL string      `json:"screenshotDataUrl,omitempty"`
	Client            *ClientInfo `json:"client,omitempty"`
}

// ValidatedReport is a payload that passed every check, ready for storage.
type ValidatedReport struct {
	Text           string
	URL            string
	Title          string
	ClientJSON     *string
	Screenshot     []byte
	ScreenshotType string
}

// Validate checks p against the text rules and, when a screenshot is
// attached, the image rules with maxImageBytes as the decoded ceiling
// (DefaultMaxImageBytes when <= 0).
//
// Image checks run in order: decode, declared type, size, dimensions. A
// decodable GIF is therefore a type error, an oversized PNG a size error and
// a PNG whose header claims more than MaxPixels a format error.
func Validate(p Payload, maxImageBytes int64) (*ValidatedReport, error) {
	text, err := CleanText(p.Text)
	if err != nil {
		return nil, err
	}

	out := &ValidatedReport{
		Text:  text,
		URL:   truncate(strings.TrimSpace(p.URL), maxURLLen),
		Title: truncate(StripMarkup(p.Title), maxTitleLen),
	}

	if p.Client != nil {
		b, err := json.Marshal(p.Client)
		if err == nil {
			s := string(b)
			out.ClientJSON = &s
		}
	}

	if p.ScreenshotDataURL == "" {
		return out, nil
	}

	img, err := DecodeDataURL(p.ScreenshotDataURL)
	if err != nil {
		return nil, err
	}
	mime, ok := allowedTypes[strings.ToLower(img.MIME)]
	if !ok {
		return nil, ErrInvalidImageType
	}

	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	if int64(len(img.Data)) > maxImageBytes {
		return nil, ErrPayloadTooLarge
	}
	if err := CheckDimensions(img.Data); err != nil {
		return nil, err
	}

	// Trust the bytes over the declaration when they disagree.
	if sniffed := utils.SniffImageType(img.Data); sniffed != "" {
		mime = sniffed
	}

	out.Screenshot = img.Data
	out.ScreenshotType = mime
	return out, nil
}

// CheckDimensions reads only the image header and rejects undecodable data
// or images larger than MaxPixels with ErrInvalidImageFormat.
func CheckDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrInvalidImageFormat
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return ErrInvalidImageFormat
	}
	return nil
}

// CleanText trims s and checks the 1..MaxTextLen character range.
func CleanText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n < 1 || n > MaxTextLen {
		return "", ErrInvalidInput
	}
	return s, nil
}

// StripMarkup removes every HTML tag from s and returns plain text.
func StripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// DataURL is a decoded "data:<mime>;base64,<body>" string.
type DataURL struct {
	MIME string
	Data []byte
}

// DecodeDataURL parses a base64 data URL. Anything that is not one, or whose
// body does not decode, is ErrInvalidImageFormat.
func DecodeDataURL(s string) (*DataURL, error) {
	header, body, ok := strings.Cut(s, ",")
	if !ok || body == "" {
		return nil, ErrInvalidImageFormat
	}

	meta, found := strings.CutPrefix(header, "data:")
	if !found {
		return nil, ErrInvalidImageFormat
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(enc, "base64") {
		return nil, ErrInvalidImageFormat
	}

	body = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, body)

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		if err != nil {
			return nil, ErrInvalidImageFormat
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidImageFormat
	}

	return &DataURL{MIME: strings.TrimSpace(mime), Data: data}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
