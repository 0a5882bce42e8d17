// Command snapshot captures a page or an image file, blacks out regions and
// files the result as a report against a snapreport server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"snapreport/internal/capture"
	"snapreport/internal/redact"
	"snapreport/pkg/utils"
)

// Version is set at build time.
var Version = "dev"

var (
	filePath   string
	pageURL    string
	pageTitle  string
	controlURL string
	redactions []string
	outPath    string
	format     string
	quality    int
	text       string
	noShot     bool
)

func main() {
	utils.LoadEnv()

	v := viper.New()
	v.SetEnvPrefix("SNAPSHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "snapshot",
		Short:        "Capture, redact and submit screenshots as reports",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("server", "http://localhost:9980", "report server base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token from an extension-token exchange")
	rootCmd.PersistentFlags().String("session", "", "session cookie value")
	_ = v.BindPFlags(rootCmd.PersistentFlags())

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture and redact, writing the flattened image to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context())
		},
	}
	addCaptureFlags(captureCmd)
	captureCmd.Flags().StringVarP(&outPath, "out", "o", "snapshot.png", "output file")

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Capture, redact and file a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), newClient(v))
		},
	}
	addCaptureFlags(submitCmd)
	submitCmd.Flags().StringVarP(&text, "text", "m", "", "report description (required)")
	submitCmd.Flags().BoolVar(&noShot, "no-screenshot", false, "file the report without an image")
	_ = submitCmd.MarkFlagRequired("text")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange a session cookie for a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.Context(), newClient(v))
		},
	}

	rootCmd.AddCommand(captureCmd, submitCmd, tokenCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "image file to load instead of a browser capture")
	cmd.Flags().StringVarP(&pageURL, "url", "u", "", "page to capture (or to record as the report URL)")
	cmd.Flags().StringVar(&pageTitle, "title", "", "page title recorded with the report")
	cmd.Flags().StringVar(&controlURL, "browser", "", "DevTools websocket of a running browser")
	cmd.Flags().StringArrayVarP(&redactions, "redact", "r", nil, "region to black out as x,y,w,h (repeatable)")
	cmd.Flags().StringVar(&format, "format", "png", "png or jpeg")
	cmd.Flags().IntVar(&quality, "quality", 85, "jpeg quality")
}

func newClient(v *viper.Viper) *capture.Client {
	c := &capture.Client{
		BaseURL: v.GetString("server"),
		Token:   v.GetString("token"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
	if s := v.GetString("session"); s != "" {
		c.SessionCookie = &http.Cookie{Name: "session_token", Value: s}
	}
	return c
}

func capturer() (capture.Capturer, error) {
	switch {
	case filePath != "":
		return capture.FileCapturer{Path: filePath, URL: pageURL, Title: pageTitle}, nil
	case pageURL != "":
		return capture.BrowserCapturer{PageURL: pageURL, ControlURL: controlURL}, nil
	default:
		return nil, errors.New("either --file or --url is required")
	}
}

// openSession captures and replays every --redact region as a drag.
func openSession(ctx context.Context) (*capture.Session, error) {
	c, err := capturer()
	if err != nil {
		return nil, err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Capturing...")
	s, err := capture.Open(ctx, c)
	if err != nil {
		spinner.Fail("Capture failed")
		return nil, err
	}
	w, h := s.Editor.Size()
	spinner.Success(fmt.Sprintf("Captured %dx%d (editing at %dx%d)", s.Raw.Width, s.Raw.Height, w, h))

	for _, region := range redactions {
		r, err := parseRect(region)
		if err != nil {
			return nil, err
		}
		if s.Editor.Replay(redact.Drag(r.X, r.Y, r.W, r.H)) == 0 {
			pterm.Warning.Printf("Region %q is too small and was skipped\n", region)
		}
	}
	if n := len(s.Editor.Rects()); n > 0 {
		pterm.Info.Printf("%d region(s) redacted\n", n)
	}
	return s, nil
}

func parseRect(region string) (redact.Rect, error) {
	parts := strings.Split(region, ",")
	if len(parts) != 4 {
		return redact.Rect{}, fmt.Errorf("invalid region %q: want x,y,w,h", region)
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return redact.Rect{}, fmt.Errorf("invalid region %q: %w", region, err)
		}
		vals[i] = f
	}
	return redact.Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}

func outputFormat() (capture.Format, error) {
	switch strings.ToLower(format) {
	case "png":
		return capture.PNG, nil
	case "jpeg", "jpg":
		return capture.JPEG, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

func runCapture(ctx context.Context) error {
	f, err := outputFormat()
	if err != nil {
		return err
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}

	data, err := capture.Encode(s.Flatten(), f, quality)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s (%s)\n", outPath, utils.FormatBytes(int64(len(data))))
	return nil
}

func runSubmit(ctx context.Context, client *capture.Client) error {
	if client.Token == "" && client.SessionCookie == nil {
		return errors.New("--token or --session is required")
	}

	sub := capture.Submission{
		Text:   text,
		URL:    pageURL,
		Title:  pageTitle,
		Client: &capture.ClientInfo{Browser: "snapshot-cli", OS: runtime.GOOS},
	}

	if !noShot {
		f, err := outputFormat()
		if err != nil {
			return err
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		if sub.URL == "" {
			sub.URL = s.Raw.URL
		}
		if sub.Title == "" {
			sub.Title = s.Raw.Title
		}
		dataURL, err := s.DataURL(f, quality)
		if err != nil {
			return err
		}
		sub.ScreenshotDataURL = &dataURL
	}

	spinner, _ := pterm.DefaultSpinner.Start("Submitting report...")
	rc, err := client.Submit(ctx, sub)
	switch {
	case errors.Is(err, capture.ErrImageTooLarge):
		spinner.Fail("Image too large (max 5MB)")
		return err
	case err != nil:
		spinner.Fail("Submit failed")
		return err
	}
	spinner.Success("Report filed")

	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"ID", rc.ID},
		{"Created", rc.CreatedAt.Local().Format(time.RFC1123)},
	}).Render()
	return nil
}

func runToken(ctx context.Context, client *capture.Client) error {
	if client.SessionCookie == nil {
		return errors.New("--session is required")
	}
	tok, err := client.FetchToken(ctx)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
