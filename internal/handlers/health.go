package handlers

import (
	"net/http"

	"snapreport/internal/appinfo"
	"snapreport/pkg/utils"
)

// Health handles GET /healthz.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":          "ok",
		"uptime":          appinfo.Uptime().Round(1e9).String(),
		"reports":         appinfo.TotalReports.Load(),
		"upvotes":         appinfo.TotalUpvotes.Load(),
		"screenshotBytes": appinfo.ScreenshotBytes.Load(),
		"screenshotSize":  utils.FormatBytes(appinfo.ScreenshotBytes.Load()),
	}
	if a.Cache != nil && a.Cache.Enabled() {
		items, size := a.Cache.Stats()
		resp["cacheItems"] = items
		resp["cacheSize"] = utils.FormatBytes(size)
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			resp["status"] = "degraded"
			utils.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}
