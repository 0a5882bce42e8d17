package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"snapreport/internal/ingest"
	"snapreport/internal/ratelimit"
	"snapreport/internal/reports"
	"snapreport/pkg/utils"
)

// bodySlack covers JSON framing and text fields on top of the base64 image.
const bodySlack = 64 << 10

// BodyLimit is the largest request body that can carry an image of
// maxImage decoded bytes.
func BodyLimit(maxImage int64) int64 {
	return int64(base64.StdEncoding.EncodedLen(int(maxImage))) + bodySlack
}

type createdResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateReport handles POST /reports.
//
// Order: identity, rate limit, validation, store. Nothing is written unless
// every earlier step passed.
func (a *API) CreateReport(w http.ResponseWriter, r *http.Request) {
	c, ok := a.claim(w, r)
	if !ok {
		return
	}
	if !a.allow(w, r, ratelimit.RouteReportsCreate) {
		return
	}

	maxImage := a.Opts.MaxImageBytes
	if maxImage <= 0 {
		maxImage = ingest.DefaultMaxImageBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, BodyLimit(maxImage))

	var p ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, utils.ErrRequestBodyTooLarge, "Image too large.")
			return
		}
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Invalid request body.")
		return
	}

	v, err := ingest.Validate(p, maxImage)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	rep, err := a.Reports.Create(r.Context(), c.UserID, v)
	if err != nil {
		internalError(w, r, "create report", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, createdResponse{ID: rep.ID, CreatedAt: rep.CreatedAt})
}

func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		utils.WriteError(w, http.StatusRequestEntityTooLarge, utils.ErrRequestBodyTooLarge, "Image too large.")
	case errors.Is(err, ingest.ErrInvalidImageType):
		utils.WriteError(w, http.StatusBadRequest, utils.ErrImageInvalidType, "Invalid image type. Only PNG and JPEG allowed.")
	case errors.Is(err, ingest.ErrInvalidImageFormat):
		utils.WriteError(w, http.StatusBadRequest, utils.ErrImageInvalidFormat, "Invalid image format.")
	default:
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Text must be between 1 and 500 characters.")
	}
}

// ListReports handles GET /reports?sort=new|top&status=...
func (a *API) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := reports.ParseStatus(q.Get("status"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Unknown status filter.")
		return
	}
	sort := reports.SortNew
	if q.Get("sort") == reports.SortTop {
		sort = reports.SortTop
	}
	limit := utils.ParseInt(q.Get("limit"), a.Opts.ListLimit, 0, 500)

	items, err := a.Reports.List(r.Context(), sort, status, limit)
	if err != nil {
		internalError(w, r, "list reports", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, items)
}

type detailResponse struct {
	*reports.Detail
	Screenshot *string `json:"screenshot"`
}

// GetReport handles GET /reports/{id}. The screenshot is inlined as a data
// URL.
func (a *API) GetReport(w http.ResponseWriter, r *http.Request) {
	d, err := a.Reports.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, reports.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Report not found.")
		return
	}
	if err != nil {
		internalError(w, r, "get report", err)
		return
	}

	resp := detailResponse{Detail: d}
	if len(d.Screenshot) > 0 {
		ct := d.ScreenshotType
		if ct == "" {
			ct = "image/png"
		}
		s := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(d.Screenshot)
		resp.Screenshot = &s
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

// ToggleUpvote handles POST /reports/{id}/upvote.
func (a *API) ToggleUpvote(w http.ResponseWriter, r *http.Request) {
	c, ok := a.claim(w, r)
	if !ok {
		return
	}
	if !a.allow(w, r, ratelimit.RouteUpvote) {
		return
	}

	res, err := a.Reports.Toggle(r.Context(), c.UserID, r.PathValue("id"))
	if errors.Is(err, reports.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Report not found.")
		return
	}
	if err != nil {
		internalError(w, r, "toggle upvote", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddComment handles POST /reports/{id}/comments.
func (a *API) AddComment(w http.ResponseWriter, r *http.Request) {
	c, ok := a.claim(w, r)
	if !ok {
		return
	}
	if !a.allow(w, r, ratelimit.RouteCommentsCreate) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Invalid request body.")
		return
	}
	text, err := ingest.CleanText(ingest.StripMarkup(req.Text))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Text must be between 1 and 500 characters.")
		return
	}

	cm, err := a.Reports.AddComment(r.Context(), c.UserID, r.PathValue("id"), text)
	if errors.Is(err, reports.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Report not found.")
		return
	}
	if err != nil {
		internalError(w, r, "add comment", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, commentResponse{ID: cm.ID, Text: cm.Text, CreatedAt: cm.CreatedAt})
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PATCH /reports/{id}/status. Triagers only.
func (a *API) SetStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := a.claim(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Invalid request body.")
		return
	}

	err := a.Reports.SetStatus(r.Context(), c.UserID, r.PathValue("id"), req.Status)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, reports.ErrInvalidStatus):
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Bad status.")
	case errors.Is(err, reports.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, utils.ErrAuthForbidden, "Only triagers can change status.")
	case errors.Is(err, reports.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Report not found.")
	default:
		internalError(w, r, "set status", err)
	}
}
