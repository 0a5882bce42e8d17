package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"snapreport/internal/database"
	"snapreport/internal/identity"
	"snapreport/internal/middleware"
	"snapreport/internal/ratelimit"
	"snapreport/internal/reports"
	"snapreport/pkg/cache"
	"snapreport/pkg/utils"
)

type testEnv struct {
	api      *API
	h        http.Handler
	db       *gorm.DB
	tokens   *identity.Tokens
	sessions *identity.Sessions
}

func newEnv(t *testing.T, rules map[string]ratelimit.Rule) *testEnv {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if rules == nil {
		rules = map[string]ratelimit.Rule{}
	}
	tokens := &identity.Tokens{Secret: []byte("handler-test-secret")}
	sessions := &identity.Sessions{DB: db, TTL: time.Hour}
	sessionAuth := identity.SessionProvider{Store: sessions, CookieName: "session_token"}

	api := &API{
		Reports:     reports.NewService(reports.NewStore(db)),
		Resolver:    identity.NewResolver(identity.BearerProvider{Tokens: tokens}, sessionAuth),
		SessionAuth: sessionAuth,
		Tokens:      tokens,
		Sessions:    sessions,
		Limiter:     ratelimit.NewMemory(rules),
		Cache:       cache.New(cache.Options{Enabled: true, MaxCapacityMB: 4}),
		DB:          db,
		Opts: Options{
			MaxImageBytes: 4096,
			SessionCookie: "session_token",
			DevLogin:      true,
		},
	}
	h := middleware.Cors([]string{"chrome-extension://*"})(api.Routes())

	return &testEnv{api: api, h: h, db: db, tokens: tokens, sessions: sessions}
}

// user creates a user and returns a bearer token and a session cookie value.
func (e *testEnv) user(t *testing.T, email, role string) (id, bearer, cookie string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.sessions.EnsureUser(ctx, email, "")
	if err != nil {
		t.Fatal(err)
	}
	if role != "" {
		if err := e.db.Model(&database.User{}).Where("id = ?", u.ID).Update("role", role).Error; err != nil {
			t.Fatal(err)
		}
	}
	tok, _, err := e.tokens.Issue(u.ID, u.Email)
	if err != nil {
		t.Fatal(err)
	}
	s, err := e.sessions.Create(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	return u.ID, tok, s.Token
}

type reqOpt func(*http.Request)

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(v string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session_token", Value: v}) }
}

func withIP(ip string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (e *testEnv) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e utils.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return e.Code
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func gifDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return "data:image/gif;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestCreateReport(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	_, bearer, cookie := e.user(t, "ada@example.com", "")

	big := make([]byte, 5000)
	copy(big, []byte("\x89PNG\r\n\x1a\n"))
	tooLarge := "data:image/png;base64," + base64.StdEncoding.EncodeToString(big)

	tests := []struct {
		name     string
		body     map[string]any
		opts     []reqOpt
		want     int
		wantCode string
	}{
		{"bearer", map[string]any{"text": "broken", "url": "https://x"}, []reqOpt{withBearer(bearer)}, http.StatusCreated, ""},
		{"session", map[string]any{"text": "broken"}, []reqOpt{withCookie(cookie)}, http.StatusCreated, ""},
		{"bad bearer falls back to session", map[string]any{"text": "broken"}, []reqOpt{withBearer("junk"), withCookie(cookie)}, http.StatusCreated, ""},
		{"with screenshot", map[string]any{"text": "shot", "screenshotDataUrl": pngDataURL(t, 8, 8)}, []reqOpt{withBearer(bearer)}, http.StatusCreated, ""},
		{"anonymous", map[string]any{"text": "broken"}, nil, http.StatusUnauthorized, utils.ErrAuthRequired},
		{"empty text", map[string]any{"text": "   "}, []reqOpt{withBearer(bearer)}, http.StatusBadRequest, utils.ErrRequestInvalid},
		{"long text", map[string]any{"text": strings.Repeat("x", 501)}, []reqOpt{withBearer(bearer)}, http.StatusBadRequest, utils.ErrRequestInvalid},
		{"gif", map[string]any{"text": "x", "screenshotDataUrl": gifDataURL(t)}, []reqOpt{withBearer(bearer)}, http.StatusBadRequest, utils.ErrImageInvalidType},
		{"garbage image", map[string]any{"text": "x", "screenshotDataUrl": "data:image/png;base64,!!!"}, []reqOpt{withBearer(bearer)}, http.StatusBadRequest, utils.ErrImageInvalidFormat},
		{"too large", map[string]any{"text": "x", "screenshotDataUrl": tooLarge}, []reqOpt{withBearer(bearer)}, http.StatusRequestEntityTooLarge, utils.ErrRequestBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/reports", tt.body, tt.opts...)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Fatalf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}
			var out createdResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.ID == "" || out.CreatedAt.IsZero() {
				t.Fatalf("created body = %s, %v", rec.Body.String(), err)
			}
		})
	}
}

func TestCreateReportRateLimited(t *testing.T) {
	t.Parallel()

	e := newEnv(t, map[string]ratelimit.Rule{ratelimit.RouteReportsCreate: {MaxRequests: 2, Window: time.Hour}})
	_, bearer, _ := e.user(t, "ada@example.com", "")

	for i := 0; i < 2; i++ {
		if rec := e.do(http.MethodPost, "/reports", map[string]any{"text": "x"}, withBearer(bearer), withIP("9.9.9.9")); rec.Code != http.StatusCreated {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}

	rec := e.do(http.MethodPost, "/reports", map[string]any{"text": "x"}, withBearer(bearer), withIP("9.9.9.9"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}

	// Unauthenticated calls are turned away before they count.
	if rec := e.do(http.MethodPost, "/reports", map[string]any{"text": "x"}, withIP("8.8.8.8")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/reports", map[string]any{"text": "x"}, withBearer(bearer), withIP("8.8.8.8")); rec.Code != http.StatusCreated {
		t.Fatalf("other caller = %d", rec.Code)
	}
}

func createReport(t *testing.T, e *testEnv, bearer string, body map[string]any) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/reports", body, withBearer(bearer))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var out createdResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	return out.ID
}

func TestUpvoteToggle(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	_, bearer, _ := e.user(t, "ada@example.com", "")
	id := createReport(t, e, bearer, map[string]any{"text": "vote me"})

	var res reports.ToggleResult
	rec := e.do(http.MethodPost, "/reports/"+id+"/upvote", nil, withBearer(bearer))
	json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res != (reports.ToggleResult{Upvoted: true, Upvotes: 1}) {
		t.Fatalf("first toggle = %d %+v", rec.Code, res)
	}

	rec = e.do(http.MethodPost, "/reports/"+id+"/upvote", nil, withBearer(bearer))
	json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res != (reports.ToggleResult{Upvoted: false, Upvotes: 0}) {
		t.Fatalf("second toggle = %d %+v", rec.Code, res)
	}

	if rec := e.do(http.MethodPost, "/reports/"+id+"/upvote", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous toggle = %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/reports/nope/upvote", nil, withBearer(bearer)); rec.Code != http.StatusNotFound {
		t.Fatalf("missing report toggle = %d", rec.Code)
	}
}

func TestUpvoteRateLimited(t *testing.T) {
	t.Parallel()

	e := newEnv(t, map[string]ratelimit.Rule{ratelimit.RouteUpvote: {MaxRequests: 3, Window: time.Minute}})
	_, bearer, _ := e.user(t, "ada@example.com", "")
	id := createReport(t, e, bearer, map[string]any{"text": "vote me"})

	for i := 0; i < 3; i++ {
		if rec := e.do(http.MethodPost, "/reports/"+id+"/upvote", nil, withBearer(bearer)); rec.Code != http.StatusOK {
			t.Fatalf("toggle %d = %d", i, rec.Code)
		}
	}
	if rec := e.do(http.MethodPost, "/reports/"+id+"/upvote", nil, withBearer(bearer)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth toggle = %d, want 429", rec.Code)
	}
}

func TestExtensionToken(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	uid, bearer, cookie := e.user(t, "ada@example.com", "")
	const origin = "chrome-extension://abc"

	rec := e.do(http.MethodGet, "/auth/extension-token", nil, withCookie(cookie), withHeader("Origin", origin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != origin || rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("CORS headers missing on success")
	}
	var out tokenResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	c, err := e.tokens.Verify(out.Token)
	if err != nil || c.UserID != uid || c.Email != "ada@example.com" {
		t.Fatalf("issued token = %+v, %v", c, err)
	}
	if d := time.Until(out.ExpiresAt); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Fatalf("expiry in %v, want about 30 days", d)
	}

	// A bearer token is not a login.
	rec = e.do(http.MethodGet, "/auth/extension-token", nil, withBearer(bearer), withHeader("Origin", origin))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bearer-only = %d, want 401", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != origin {
		t.Fatalf("CORS headers missing on 401")
	}

	rec = e.do(http.MethodOptions, "/auth/extension-token", nil, withHeader("Origin", origin))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != origin {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestDevLoginFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	rec := e.do(http.MethodPost, "/auth/dev-login", map[string]string{"email": "new@example.com", "name": "New"})
	if rec.Code != http.StatusOK {
		t.Fatalf("dev-login = %d %s", rec.Code, rec.Body.String())
	}
	var cookie string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_token" {
			cookie = c.Value
		}
	}
	if cookie == "" {
		t.Fatalf("no session cookie set")
	}

	if rec := e.do(http.MethodGet, "/auth/extension-token", nil, withCookie(cookie)); rec.Code != http.StatusOK {
		t.Fatalf("token after login = %d", rec.Code)
	}

	if rec := e.do(http.MethodPost, "/auth/logout", nil, withCookie(cookie)); rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/auth/extension-token", nil, withCookie(cookie)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token after logout = %d", rec.Code)
	}

	if rec := e.do(http.MethodPost, "/auth/dev-login", map[string]string{"email": "nope"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email = %d", rec.Code)
	}

	e.api.Opts.DevLogin = false
	if rec := e.do(http.MethodPost, "/auth/dev-login", map[string]string{"email": "a@b.c"}); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled dev-login = %d", rec.Code)
	}
}

func TestStatusChange(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	_, userTok, _ := e.user(t, "user@example.com", "")
	_, triTok, _ := e.user(t, "tri@example.com", database.RoleTriager)
	id := createReport(t, e, userTok, map[string]any{"text": "triage me"})

	tests := []struct {
		name   string
		tok    string
		report string
		status string
		want   int
	}{
		{"user", userTok, id, "TRIAGED", http.StatusForbidden},
		{"bad status", triTok, id, "DONE", http.StatusBadRequest},
		{"missing", triTok, "nope", "OPEN", http.StatusNotFound},
		{"triager", triTok, id, "resolved", http.StatusOK},
	}
	for _, tt := range tests {
		rec := e.do(http.MethodPatch, "/reports/"+tt.report+"/status", map[string]string{"status": tt.status}, withBearer(tt.tok))
		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}

	rec := e.do(http.MethodGet, "/reports?status=resolved", nil)
	var items []reports.Summary
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ID != id || items[0].Status != database.StatusResolved {
		t.Fatalf("resolved listing = %+v", items)
	}

	if rec := e.do(http.MethodGet, "/reports?status=closed", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", rec.Code)
	}
}

func TestDetailCommentsAndScreenshot(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	_, bearer, _ := e.user(t, "ada@example.com", "")
	id := createReport(t, e, bearer, map[string]any{"text": "see shot", "screenshotDataUrl": pngDataURL(t, 64, 48)})

	rec := e.do(http.MethodPost, "/reports/"+id+"/comments", map[string]string{"text": " <b>me</b> too "}, withBearer(bearer))
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment = %d %s", rec.Code, rec.Body.String())
	}
	var cm commentResponse
	json.Unmarshal(rec.Body.Bytes(), &cm)
	if cm.Text != "me too" {
		t.Fatalf("comment text = %q", cm.Text)
	}
	if rec := e.do(http.MethodPost, "/reports/"+id+"/comments", map[string]string{"text": ""}, withBearer(bearer)); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty comment = %d", rec.Code)
	}

	rec = e.do(http.MethodGet, "/reports/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail = %d", rec.Code)
	}
	var detail struct {
		ID          string                `json:"id"`
		Screenshot  *string               `json:"screenshot"`
		CommentList []reports.CommentView `json:"commentList"`
	}
	json.Unmarshal(rec.Body.Bytes(), &detail)
	if detail.Screenshot == nil || !strings.HasPrefix(*detail.Screenshot, "data:image/png;base64,") {
		t.Fatalf("detail screenshot = %v", detail.Screenshot)
	}
	if len(detail.CommentList) != 1 || detail.CommentList[0].AuthorEmail != "ada@example.com" {
		t.Fatalf("detail comments = %+v", detail.CommentList)
	}

	rec = e.do(http.MethodGet, "/reports/"+id+"/screenshot?size=32", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("thumbnail = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	thumb, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("thumbnail size = %dx%d, want 32x24", b.Dx(), b.Dy())
	}

	etag := rec.Header().Get("ETag")
	rec = e.do(http.MethodGet, "/reports/"+id+"/screenshot?size=32", nil, withHeader("If-None-Match", etag))
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d, want 304", rec.Code)
	}

	if rec := e.do(http.MethodGet, "/reports/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing detail = %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/reports/nope/screenshot", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing screenshot = %d", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	_, userTok, _ := e.user(t, "user@example.com", "")
	_, triTok, _ := e.user(t, "tri@example.com", database.RoleTriager)
	createReport(t, e, userTok, map[string]any{"text": "one"})

	if rec := e.do(http.MethodGet, "/admin/stats", nil, withBearer(userTok)); rec.Code != http.StatusForbidden {
		t.Fatalf("user stats = %d", rec.Code)
	}
	rec := e.do(http.MethodGet, "/admin/stats", nil, withBearer(triTok))
	if rec.Code != http.StatusOK {
		t.Fatalf("triager stats = %d %s", rec.Code, rec.Body.String())
	}
	var st statsResponse
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.ByStatus[database.StatusOpen] != 1 || len(st.Recent) != 1 {
		t.Fatalf("stats = %+v", st)
	}

	if rec := e.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/nowhere", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d", rec.Code)
	}
}
