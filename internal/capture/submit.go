package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var (
	ErrInFlight        = errors.New("a submission is already in progress")
	ErrUnauthenticated = errors.New("not signed in")
	ErrImageTooLarge   = errors.New("image too large")
	ErrRateLimited     = errors.New("too many reports, try again later")
)

// ClientInfo describes the submitting environment.
type ClientInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Submission is the POST /reports body.
type Submission struct {
	Text              string      `json:"text"`
	URL               string      `json:"url"`
	Title             string      `json:"title"`
	ScreenshotDataURL *string     `json:"screenshotDataUrl"`
	Client            *ClientInfo `json:"client,omitempty"`
}

// Receipt is the server's answer to a created report.
type Receipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client talks to the report server. Use a bearer Token from an extension
// token exchange, or a SessionCookie.
type Client struct {
	BaseURL       string
	Token         string
	SessionCookie *http.Cookie
	HTTP          *http.Client

	inFlight atomic.Bool
}

// Submit posts one report. While a submission is running further calls fail
// with ErrInFlight; the server has no idempotency key.
func (c *Client) Submit(ctx context.Context, s Submission) (*Receipt, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer c.inFlight.Store(false)

	s.Text = strings.TrimSpace(s.Text)
	if s.Text == "" {
		return nil, fmt.Errorf("report text is required")
	}

	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/reports", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp)
	}

	var rc Receipt
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &rc, nil
}

// InFlight reports whether a submission is running.
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// FetchToken exchanges the session cookie for an extension bearer token.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/extension-token", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	return out.Token, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.SessionCookie != nil {
		req.AddCookie(c.SessionCookie)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func statusError(resp *http.Response) error {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusRequestEntityTooLarge:
		return ErrImageTooLarge
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if apiErr.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
