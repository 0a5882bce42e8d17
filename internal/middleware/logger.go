package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"

	"snapreport/pkg/logger"
)

// statusWriter captures status code and size.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.length += len(b)
	return w.ResponseWriter.Write(b)
}

var (
	cGet     = color.New(color.FgHiCyan, color.Bold).SprintFunc()
	cPost    = color.New(color.FgHiGreen, color.Bold).SprintFunc()
	cPatch   = color.New(color.FgHiMagenta, color.Bold).SprintFunc()
	cOptions = color.New(color.FgHiBlue).SprintFunc()
	cDefault = color.New(color.FgWhite, color.Bold).SprintFunc()

	c200 = color.New(color.FgGreen, color.Bold).SprintFunc()
	c400 = color.New(color.FgYellow, color.Bold).SprintFunc()
	c500 = color.New(color.FgRed, color.Bold).SprintFunc()

	cTime = color.New(color.FgHiBlack).SprintFunc()
	cPath = color.New(color.FgWhite).SprintFunc()
)

// Logger prints one access line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		logger.LogRaw(accessLine(start, r.Method, r.URL.RequestURI(), ww.statusCode, ww.length, time.Since(start)))
	})
}

func accessLine(start time.Time, method, uri string, code, size int, d time.Duration) string {
	var statusStr string
	switch {
	case code >= 500:
		statusStr = c500(fmt.Sprintf("%d", code))
	case code >= 400:
		statusStr = c400(fmt.Sprintf("%d", code))
	default:
		statusStr = c200(fmt.Sprintf("%d", code))
	}

	m := fmt.Sprintf("%-9s", "["+method+"]")
	switch method {
	case http.MethodGet:
		m = cGet(m)
	case http.MethodPost:
		m = cPost(m)
	case http.MethodPatch:
		m = cPatch(m)
	case http.MethodOptions:
		m = cOptions(m)
	default:
		m = cDefault(m)
	}

	return fmt.Sprintf("%s %s %s %s %s %s %s",
		cTime(start.Format("2006-01-02 15:04:05")),
		m,
		cPath(uri),
		statusStr,
		cTime("|"),
		cTime(d.Round(time.Microsecond).String()),
		cTime(fmt.Sprintf("%dB", size)),
	)
}
