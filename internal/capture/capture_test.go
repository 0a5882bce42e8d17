package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"snapreport/internal/redact"
	"snapreport/pkg/utils"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenScalesAndRedacts(t *testing.T) {
	t.Parallel()

	path := writePNG(t, 3840, 2160)
	s, err := Open(context.Background(), FileCapturer{Path: path, URL: "https://example.com", Title: "Example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Raw.Width != 3840 || s.Raw.Height != 2160 {
		t.Fatalf("raw size = %dx%d, want native 3840x2160", s.Raw.Width, s.Raw.Height)
	}

	s.Editor.Replay(redact.Drag(100, 100, 50, 50))

	dataURL, err := s.DataURL(PNG, 0)
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	prefix := "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("data URL prefix = %q", dataURL[:30])
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1920 || b.Dy() != 1080 {
		t.Fatalf("encoded size = %dx%d, want 1920x1080", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(120, 120).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("redacted pixel = %v, want black", img.At(120, 120))
	}
	if r, g, b, _ := img.At(10, 10).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("untouched pixel = %v, want white", img.At(10, 10))
	}
}

func TestFileCapturerMissingFile(t *testing.T) {
	t.Parallel()

	_, err := FileCapturer{Path: filepath.Join(t.TempDir(), "nope.png")}.Capture(context.Background())
	if err == nil {
		t.Fatalf("Capture missing file: want error")
	}
}

func TestEncodeJPEGDataURL(t *testing.T) {
	t.Parallel()

	got, err := EncodeDataURL(redact.SampleDocument(64, 64), JPEG, 80)
	if err != nil {
		t.Fatalf("EncodeDataURL: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("prefix = %q", got[:24])
	}
	if _, err := Encode(redact.SampleDocument(8, 8), Format("gif"), 0); err == nil {
		t.Fatalf("Encode gif: want error")
	}
}

func TestEncodeMatchesServerEncoder(t *testing.T) {
	t.Parallel()

	img := redact.SampleDocument(120, 40)

	tests := []struct {
		name    string
		format  Format
		quality int
		server  utils.ProcessOptions
	}{
		{"png", PNG, 0, utils.ProcessOptions{Mode: "original", Format: "png"}},
		{"empty format is png", "", 0, utils.ProcessOptions{Mode: "original", Format: "png"}},
		{"jpeg default quality", JPEG, 0, utils.ProcessOptions{Mode: "original", Format: "jpeg", Quality: 92}},
		{"jpeg out of range quality", JPEG, 150, utils.ProcessOptions{Mode: "original", Format: "jpeg", Quality: 92}},
		{"jpeg explicit quality", JPEG, 60, utils.ProcessOptions{Mode: "original", Format: "jpeg", Quality: 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Encode(img, tt.format, tt.quality)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			want, _, _, err := utils.ProcessImage(img, tt.server)
			if err != nil {
				t.Fatalf("ProcessImage: %v", err)
			}
			if !bytes.Equal(got, want.Bytes()) {
				t.Fatalf("Encode output differs from ProcessImage")
			}
		})
	}

	data, err := Encode(img, JPEG, 0)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 120 || b.Dy() != 40 {
		t.Fatalf("jpeg size = %dx%d, want 120x40", b.Dx(), b.Dy())
	}
}

func TestSubmitSendsBearerAndDecodesReceipt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reports" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var s Submission
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if s.Text != "broken button" {
			t.Errorf("text = %q, want trimmed", s.Text)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"r1","createdAt":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "tok"}
	rc, err := c.Submit(context.Background(), Submission{Text: "  broken button  ", URL: "https://x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rc.ID != "r1" {
		t.Fatalf("receipt id = %q", rc.ID)
	}
	if c.InFlight() {
		t.Fatalf("InFlight after completion")
	}
}

func TestSubmitRejectsWhileInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"r1"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := c.Submit(context.Background(), Submission{Text: "first"}); err != nil {
			t.Errorf("first Submit: %v", err)
		}
	}()

	<-entered
	if _, err := c.Submit(context.Background(), Submission{Text: "second"}); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second Submit err = %v, want ErrInFlight", err)
	}
	close(release)
	wg.Wait()
}

func TestSubmitMapsStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusRequestEntityTooLarge, ErrImageTooLarge},
		{http.StatusUnauthorized, ErrUnauthenticated},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := &Client{BaseURL: srv.URL}
		_, err := c.Submit(context.Background(), Submission{Text: "x"})
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestFetchTokenUsesSessionCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session_token")
		if err != nil || c.Value != "sess" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"token":"jwt"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, SessionCookie: &http.Cookie{Name: "session_token", Value: "sess"}}
	tok, err := c.FetchToken(context.Background())
	if err != nil || tok != "jwt" {
		t.Fatalf("FetchToken = %q, %v", tok, err)
	}

	c.SessionCookie = nil
	if _, err := c.FetchToken(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("FetchToken without cookie err = %v", err)
	}
}
