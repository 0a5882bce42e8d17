package capture

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"snapreport/pkg/utils"
)

// Format is the raster encoding of a data URL.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// Encode serializes img in the given format at its own size. quality
// applies to JPEG only and defaults to 92.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if format != PNG && format != JPEG && format != "" {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if quality <= 0 || quality > 100 {
		quality = 92
	}
	buf, _, _, err := utils.ProcessImage(img, utils.ProcessOptions{Mode: "original", Format: string(format), Quality: quality})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps encoded bytes as data:image/<format>;base64,<body>.
func DataURL(data []byte, format Format) string {
	if format == "" {
		format = PNG
	}
	var sb strings.Builder
	sb.Grow(len(data)*4/3 + 32)
	sb.WriteString("data:image/")
	sb.WriteString(string(format))
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}

// EncodeDataURL is Encode followed by DataURL.
func EncodeDataURL(img image.Image, format Format, quality int) (string, error) {
	data, err := Encode(img, format, quality)
	if err != nil {
		return "", err
	}
	return DataURL(data, format), nil
}
