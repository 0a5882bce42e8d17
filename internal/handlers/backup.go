package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"snapreport/pkg/utils"
)

var backupMutex sync.Mutex

// Backup handles GET /admin/backup: a point-in-time copy of the SQLite
// file, for triagers only.
func (a *API) Backup(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireTriager(w, r); !ok {
		return
	}

	if !backupMutex.TryLock() {
		utils.WriteError(w, http.StatusTooManyRequests, utils.ErrRequestRateLimitExceeded, "Another backup is currently in progress.")
		return
	}
	defer backupMutex.Unlock()

	filename := fmt.Sprintf("snapreport_%s.db", time.Now().Format("2006-01-02_15-04-05"))
	tempPath := filepath.Join(os.TempDir(), filename)

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	// VACUUM INTO writes a consistent copy without blocking readers.
	query := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(tempPath, "'", "''"))
	if err := a.DB.WithContext(ctx).Exec(query).Error; err != nil {
		internalError(w, r, "snapshot database", err)
		return
	}
	defer os.Remove(tempPath)

	info, err := os.Stat(tempPath)
	if err != nil {
		internalError(w, r, "stat snapshot", err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Cache-Control", "no-store")

	http.ServeFile(w, r, tempPath)
}
