package utils

import (
	"bytes"
	"image"
	"image/png"
	"net/http/httptest"
	"testing"
)

func TestMatchOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		origin, pattern string
		want            bool
	}{
		{"https://anything.test", "*", true},
		{"https://app.example", "https://app.example", true},
		{"http://app.example", "https://app.example", false},
		{"https://example.com", "https://**.example.com", true},
		{"https://a.b.example.com", "https://**.example.com", true},
		{"https://evilexample.com", "https://**.example.com", false},
		{"https://a.example.com", "https://*.example.com", true},
		{"https://example.com", "https://*.example.com", false},
		{"chrome-extension://abcdefgh", "chrome-extension://*", true},
		{"chrome-extension://", "chrome-extension://*", false},
		{"moz-extension://abcdefgh", "chrome-extension://*", false},
	}

	for _, tt := range tests {
		if got := MatchOrigin(tt.origin, tt.pattern); got != tt.want {
			t.Errorf("MatchOrigin(%q, %q) = %v, want %v", tt.origin, tt.pattern, got, tt.want)
		}
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	t.Parallel()

	patterns := []string{"https://app.example", "chrome-extension://*"}
	if IsAllowedOrigin("", patterns) {
		t.Fatalf("empty origin allowed")
	}
	if !IsAllowedOrigin("https://app.example/reports?sort=top", patterns) {
		t.Fatalf("referer-style origin not reduced to scheme://host")
	}
	if IsAllowedOrigin("https://other.example", patterns) {
		t.Fatalf("unlisted origin allowed")
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"5MB", 5242880, false},
		{"5242880", 5242880, false},
		{"1.5 kb", 1536, false},
		{"2GB", 2 << 30, false},
		{"", 0, true},
		{"abc", 0, true},
		{"5XB", 0, true},
		{"0", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSize(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if got := SizeToBytes("garbage", 42); got != 42 {
		t.Fatalf("SizeToBytes fallback = %d, want 42", got)
	}
}

func TestParseInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 10},
		{"abc", 10},
		{"5", 5},
		{"0", 1},
		{"99", 50},
	}
	for _, tt := range tests {
		if got := ParseInt(tt.in, 10, 1, 50); got != tt.want {
			t.Errorf("ParseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestGetRealIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := GetRealIP(r); got != "10.0.0.1" {
		t.Fatalf("RemoteAddr ip = %q", got)
	}

	r.Header.Set("X-Real-IP", " 9.9.9.9 ")
	if got := GetRealIP(r); got != "9.9.9.9" {
		t.Fatalf("X-Real-IP ip = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := GetRealIP(r); got != "1.2.3.4" {
		t.Fatalf("X-Forwarded-For ip = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		512:     "512 B",
		1536:    "1.50 KB",
		5242880: "5.00 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSniffAndProcessImage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 200, 100))); err != nil {
		t.Fatal(err)
	}
	if got := SniffImageType(buf.Bytes()); got != "image/png" {
		t.Fatalf("SniffImageType(png) = %q", got)
	}
	if got := SniffImageType([]byte("GIF89a......")); got != "" {
		t.Fatalf("SniffImageType(gif) = %q, want empty", got)
	}

	img, _ := png.Decode(bytes.NewReader(buf.Bytes()))

	_, w, h, err := ProcessImage(img, ProcessOptions{Mode: "fit", Size: 50, Format: "jpeg"})
	if err != nil || w != 50 || h != 25 {
		t.Fatalf("fit 50 = %dx%d, %v; want 50x25", w, h, err)
	}
	_, w, h, err = ProcessImage(img, ProcessOptions{Mode: "fit", Size: 400})
	if err != nil || w != 200 || h != 100 {
		t.Fatalf("fit 400 = %dx%d, %v; want no upscale", w, h, err)
	}
	if _, _, _, err := ProcessImage(img, ProcessOptions{Format: "gif"}); err == nil {
		t.Fatalf("gif output: want error")
	}
}
