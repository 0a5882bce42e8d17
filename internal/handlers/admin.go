package handlers

import (
	"net/http"
	"runtime"
	"time"

	"snapreport/internal/appinfo"
	"snapreport/internal/database"
	"snapreport/internal/identity"
	"snapreport/internal/reports"
	"snapreport/pkg/utils"
)

type statsResponse struct {
	TotalReports    int64             `json:"totalReports"`
	ByStatus        map[string]int64  `json:"byStatus"`
	TotalUpvotes    int64             `json:"totalUpvotes"`
	ScreenshotBytes int64             `json:"screenshotBytes"`
	Uptime          string            `json:"uptime"`
	UptimeSeconds   int64             `json:"uptimeSeconds"`
	RAMUsage        uint64            `json:"ramUsage"`
	NumGoroutines   int               `json:"numGoroutines"`
	MaxImageBytes   int64             `json:"maxImageBytes"`
	Recent          []reports.Summary `json:"recent"`
}

// requireTriager resolves the caller and checks the TRIAGER role, writing
// 401/403 otherwise.
func (a *API) requireTriager(w http.ResponseWriter, r *http.Request) (*identity.Claim, bool) {
	c, ok := a.claim(w, r)
	if !ok {
		return nil, false
	}
	if a.DB == nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrRequestNotFound, "Endpoint not found.")
		return nil, false
	}

	var roles []string
	if err := a.DB.WithContext(r.Context()).Model(&database.User{}).Where("id = ?", c.UserID).Pluck("role", &roles).Error; err != nil {
		internalError(w, r, "load role", err)
		return nil, false
	}
	if len(roles) == 0 || roles[0] != database.RoleTriager {
		utils.WriteError(w, http.StatusForbidden, utils.ErrAuthForbidden, "Triager role required.")
		return nil, false
	}
	return c, true
}

// Stats handles GET /admin/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireTriager(w, r); !ok {
		return
	}
	ctx := r.Context()

	var rows []struct {
		Status string
		N      int64
	}
	err := a.DB.WithContext(ctx).Model(&database.Report{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		internalError(w, r, "count by status", err)
		return
	}
	byStatus := map[string]int64{database.StatusOpen: 0, database.StatusTriaged: 0, database.StatusResolved: 0}
	for _, row := range rows {
		byStatus[row.Status] = row.N
	}

	recent, err := a.Reports.List(ctx, reports.SortNew, "", 5)
	if err != nil {
		internalError(w, r, "recent reports", err)
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	up := time.Since(appinfo.StartTime)
	utils.WriteJSON(w, http.StatusOK, statsResponse{
		TotalReports:    appinfo.TotalReports.Load(),
		ByStatus:        byStatus,
		TotalUpvotes:    appinfo.TotalUpvotes.Load(),
		ScreenshotBytes: appinfo.ScreenshotBytes.Load(),
		Uptime:          up.Round(time.Second).String(),
		UptimeSeconds:   int64(up.Seconds()),
		RAMUsage:        m.Alloc,
		NumGoroutines:   runtime.NumGoroutine(),
		MaxImageBytes:   a.Opts.MaxImageBytes,
		Recent:          recent,
	})
}
