package utils

import "net/http"

// SniffImageType returns the content type detected from the leading bytes of
// data, or "" when it is not a PNG or JPEG.
func SniffImageType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	switch ct := http.DetectContentType(head); ct {
	case "image/png", "image/jpeg":
		return ct
	default:
		return ""
	}
}
