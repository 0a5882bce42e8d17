package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"snapreport/pkg/utils"
)

// loginLimiter is a strict per-IP bucket for the login endpoint:
// 1 request/sec, burst 10.
type loginLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{visitors: make(map[string]*rate.Limiter)}
}

func (l *loginLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.visitors[ip]
	if !ok {
		lim = rate.NewLimiter(1, 10)
		l.visitors[ip] = lim
	}
	return lim
}

func (l *loginLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.get(utils.GetRealIP(r)).Allow() {
			utils.WriteError(w, http.StatusTooManyRequests, utils.ErrAuthRateLimitExceed, "Too many login attempts. Please wait.")
			return
		}
		next(w, r)
	}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExtensionToken handles GET /auth/extension-token. It needs an ambient
// session and mints a bearer token for out-of-origin callers.
func (a *API) ExtensionToken(w http.ResponseWriter, r *http.Request) {
	if a.SessionAuth == nil {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Unauthenticated.")
		return
	}
	c, ok := a.SessionAuth.Resolve(r)
	if !ok || c == nil || c.UserID == "" {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Unauthenticated.")
		return
	}

	tok, exp, err := a.Tokens.Issue(c.UserID, c.Email)
	if err != nil {
		internalError(w, r, "issue token", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: exp})
}

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// DevLogin handles POST /auth/dev-login. It finds or creates the user by
// email and sets the session cookie. Disabled outside development.
func (a *API) DevLogin(w http.ResponseWriter, r *http.Request) {
	if !a.Opts.DevLogin || a.Opts.Production || a.Sessions == nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrRequestNotFound, "Endpoint not found.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Invalid request body.")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrAuthInvalid, "A valid email is required.")
		return
	}

	u, err := a.Sessions.EnsureUser(r.Context(), email, strings.TrimSpace(req.Name))
	if err != nil {
		internalError(w, r, "ensure user", err)
		return
	}
	sess, err := a.Sessions.Create(r.Context(), u.ID)
	if err != nil {
		internalError(w, r, "create session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"userId": u.ID,
		"email":  u.Email,
		"role":   u.Role,
	})
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(a.cookieName()); err == nil && a.Sessions != nil {
		if err := a.Sessions.Revoke(r.Context(), c.Value); err != nil {
			internalError(w, r, "revoke session", err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "action": "logged_out"})
}

func (a *API) cookieName() string {
	if a.Opts.SessionCookie != "" {
		return a.Opts.SessionCookie
	}
	return "session_token"
}
