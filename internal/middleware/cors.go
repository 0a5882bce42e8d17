package middleware

import (
	"net/http"

	"snapreport/pkg/utils"
)

const (
	corsMethods = "GET, POST, PATCH, OPTIONS"
	corsHeaders = "Content-Type, Authorization, Cookie, X-Requested-With"
	corsExpose  = "X-RateLimit-Remaining, Retry-After"
)

// Cors echoes allowed origins back with credentials enabled. Extension
// origins (chrome-extension://<id>) match through "scheme://*" patterns.
// Headers are set before the handler runs so error responses carry them
// too. Preflight requests end here with 200.
func Cors(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			w.Header().Add("Vary", "Origin")
			if utils.IsAllowedOrigin(origin, patterns) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", corsMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				w.Header().Set("Access-Control-Expose-Headers", corsExpose)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
