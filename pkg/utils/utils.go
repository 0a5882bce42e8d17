package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/joho/godotenv"

	"snapreport/pkg/logger"
)

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.LogDebug("No .env file loaded: %v", err)
	}
}

// GetRealIP returns the client address, preferring proxy headers.
// The result is client-controlled when no trusted proxy strips these headers.
func GetRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return ip
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
