// Package handlers is the HTTP surface of the report service.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"snapreport/internal/database"
	"snapreport/internal/identity"
	"snapreport/internal/ingest"
	"snapreport/internal/middleware"
	"snapreport/internal/ratelimit"
	"snapreport/internal/reports"
	"snapreport/pkg/cache"
	"snapreport/pkg/logger"
	"snapreport/pkg/utils"
)

// ReportService is the storage side the handlers call.
type ReportService interface {
	Create(ctx context.Context, authorID string, v *ingest.ValidatedReport) (*database.Report, error)
	List(ctx context.Context, sort, status string, limit int) ([]reports.Summary, error)
	Get(ctx context.Context, id string) (*reports.Detail, error)
	Screenshot(ctx context.Context, id string) ([]byte, string, error)
	Toggle(ctx context.Context, userID, reportID string) (reports.ToggleResult, error)
	AddComment(ctx context.Context, userID, reportID, text string) (*database.Comment, error)
	SetStatus(ctx context.Context, userID, reportID, status string) error
}

// SessionIssuer opens and closes ambient sessions for the dev login.
type SessionIssuer interface {
	EnsureUser(ctx context.Context, email, name string) (*database.User, error)
	Create(ctx context.Context, userID string) (*database.Session, error)
	Revoke(ctx context.Context, token string) error
}

// Options carries the settings handlers read per request.
type Options struct {
	MaxImageBytes int64
	SessionCookie string
	SessionTTL    time.Duration
	DevLogin      bool
	Production    bool
	ListLimit     int
}

// API holds the handler dependencies.
type API struct {
	Reports  ReportService
	Resolver *identity.Resolver
	// SessionAuth resolves the ambient session only; token issuance must
	// not accept a bearer token as proof of login.
	SessionAuth identity.Provider
	Tokens      *identity.Tokens
	Sessions    SessionIssuer
	Limiter     ratelimit.Limiter
	Cache       *cache.MemoryCache
	DB          *gorm.DB
	Opts        Options

	requestGroup singleflight.Group
	loginLimiter *loginLimiter
}

// Routes registers every endpoint on a new ServeMux.
func (a *API) Routes() *http.ServeMux {
	if a.loginLimiter == nil {
		a.loginLimiter = newLoginLimiter()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /reports", a.CreateReport)
	mux.HandleFunc("GET /reports", a.ListReports)
	mux.HandleFunc("GET /reports/{id}", a.GetReport)
	mux.HandleFunc("GET /reports/{id}/screenshot", a.ServeScreenshot)
	mux.HandleFunc("POST /reports/{id}/upvote", a.ToggleUpvote)
	mux.HandleFunc("POST /reports/{id}/comments", a.AddComment)
	mux.HandleFunc("PATCH /reports/{id}/status", a.SetStatus)

	mux.HandleFunc("GET /auth/extension-token", a.ExtensionToken)
	mux.HandleFunc("POST /auth/dev-login", a.loginLimiter.wrap(a.DevLogin))
	mux.HandleFunc("POST /auth/logout", a.Logout)

	mux.HandleFunc("GET /admin/stats", a.Stats)
	mux.HandleFunc("GET /admin/backup", a.Backup)
	mux.HandleFunc("GET /healthz", a.Health)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrRequestNotFound, "Endpoint not found.")
	})

	return mux
}

// Handler wraps Routes in the server middleware chain. Cors is outermost so
// throttle, body-limit and auth rejections still carry the allow-origin
// headers an extension needs to read them. throttle may be nil.
func (a *API) Handler(throttle *middleware.Throttle, corsOrigins []string) http.Handler {
	var h http.Handler = a.Routes()
	if a.Resolver != nil {
		h = a.Resolver.Middleware(h)
	}
	maxImage := a.Opts.MaxImageBytes
	if maxImage <= 0 {
		maxImage = ingest.DefaultMaxImageBytes
	}
	h = middleware.MaxBody(BodyLimit(maxImage))(h)
	if throttle != nil {
		h = throttle.Middleware(h)
	}
	h = middleware.SecurityHeaders(middleware.DefaultHeaders(a.Opts.Production))(h)
	h = middleware.Logger(h)
	return middleware.Cors(corsOrigins)(h)
}

// claim returns the resolved caller or writes 401.
func (a *API) claim(w http.ResponseWriter, r *http.Request) (*identity.Claim, bool) {
	if c := identity.FromContext(r.Context()); c != nil {
		return c, true
	}
	if a.Resolver != nil {
		if c, err := a.Resolver.Resolve(r); err == nil {
			return c, true
		}
	}
	utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Sign in to continue.")
	return nil, false
}

// allow counts one attempt against route and writes 429 when over budget.
func (a *API) allow(w http.ResponseWriter, r *http.Request, route string) bool {
	if a.Limiter == nil {
		return true
	}
	res := a.Limiter.Check(utils.GetRealIP(r), route)
	if res.Remaining >= 0 {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	}
	if res.Allowed {
		return true
	}
	if !res.ResetAt.IsZero() {
		secs := int(time.Until(res.ResetAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	utils.WriteError(w, http.StatusTooManyRequests, utils.ErrRequestRateLimitExceeded,
		"Too many requests. Please try again later.")
	return false
}

// internalError logs err with context and answers with a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	logger.LogError("%s %s: %s: %v", r.Method, r.URL.Path, what, err)
	utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Something went wrong. Please try again.")
}
