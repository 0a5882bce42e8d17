package database

import (
	"context"
	"os"
	"time"

	"gorm.io/gorm"

	"snapreport/internal/appinfo"
	"snapreport/pkg/logger"
	"snapreport/pkg/utils"
)

/*
Storage maintenance

Screenshots dominate the file size, so the cleaner works on them:

 1. Expired sessions are always deleted.
 2. Below the size limit nothing else happens; freed pages are reused by
    SQLite without shrinking the file.
 3. Above the limit with more than half of the file empty: VACUUM.
 4. Above the limit and full: screenshot blobs of the oldest RESOLVED
    reports are cleared (the report rows stay) until logical size drops to
    85% of the limit. Open and triaged reports keep their screenshots.
*/

// Cleaner runs periodic storage maintenance against one database file.
type Cleaner struct {
	DB       *gorm.DB
	Path     string
	Limit    int64
	Interval time.Duration
	Now      func() time.Time

	// OnClear is told which reports lost their screenshot.
	OnClear func(reportIDs []string)
}

// StartCleaner runs the cleaner until ctx is cancelled. It runs once
// immediately so a bloated file from a previous run is handled at boot.
func (c *Cleaner) StartCleaner(ctx context.Context) {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}

	logger.LogInfo("Storage Cleaner started. Limit: %s, Interval: %s", utils.FormatBytes(c.Limit), c.Interval)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single maintenance pass.
func (c *Cleaner) RunOnce(ctx context.Context) {
	if n, err := c.PurgeExpiredSessions(ctx); err != nil {
		logger.LogError("Session purge failed: %v", err)
	} else if n > 0 {
		logger.LogInfo("Purged %d expired sessions.", n)
	}

	c.checkAndPrune(ctx)
}

// PurgeExpiredSessions deletes sessions whose expiry is in the past.
func (c *Cleaner) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	res := c.DB.WithContext(ctx).Where("expires_at < ?", now()).Delete(&Session{})
	return res.RowsAffected, res.Error
}

func (c *Cleaner) checkAndPrune(ctx context.Context) {
	fileInfo, err := os.Stat(c.Path)
	if err != nil {
		logger.LogError("Cleaner failed to stat DB file: %v", err)
		return
	}

	physicalSize := fileInfo.Size()
	if walInfo, err := os.Stat(c.Path + "-wal"); err == nil {
		physicalSize += walInfo.Size()
	}

	if physicalSize < c.Limit {
		return
	}

	var logicalSize int64
	row := c.DB.WithContext(ctx).Model(&Report{}).Select("IFNULL(SUM(screenshot_size), 0)").Row()
	if err := row.Scan(&logicalSize); err != nil {
		logger.LogError("Failed to calculate logical size: %v", err)
		return
	}

	emptySpace := physicalSize - logicalSize
	isBloated := float64(emptySpace) > (float64(physicalSize) * 0.50)

	logger.LogInfo("Storage Analysis - Phys: %s | Screenshots: %s | Free: %s",
		utils.FormatBytes(physicalSize),
		utils.FormatBytes(logicalSize),
		utils.FormatBytes(emptySpace))

	if isBloated {
		logger.LogWarn("DB is bloated (>50%% empty). Starting VACUUM to reclaim space...")

		c.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE);")

		startTime := time.Now()
		if err := c.DB.WithContext(ctx).Exec("VACUUM;").Error; err != nil {
			logger.LogError("VACUUM failed: %v", err)
		} else {
			logger.LogInfo("VACUUM completed in %v. Disk space reclaimed.", time.Since(startTime))
		}
		return
	}

	target := int64(float64(c.Limit) * 0.85)
	toFree := logicalSize - target
	if toFree <= 0 {
		return
	}

	freed, cleared := c.ClearResolvedScreenshots(ctx, toFree)
	if freed < toFree {
		logger.LogWarn("Storage over limit: only %s reclaimable from resolved reports.", utils.FormatBytes(freed))
	}
	logger.LogInfo("Pruning complete. Cleared %d screenshots (%s).", cleared, utils.FormatBytes(freed))
}

// ClearResolvedScreenshots drops screenshot blobs of the oldest resolved
// reports in batches until at least want bytes are freed.
func (c *Cleaner) ClearResolvedScreenshots(ctx context.Context, want int64) (int64, int) {
	var freed int64
	cleared := 0

	for guard := 0; freed < want && guard < 1000; guard++ {
		var batch []Report
		err := c.DB.WithContext(ctx).
			Select("id, screenshot_size").
			Where("status = ? AND screenshot IS NOT NULL", StatusResolved).
			Order("created_at ASC").
			Limit(50).
			Find(&batch).Error
		if err != nil {
			logger.LogError("Prune fetch failed: %v", err)
			break
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, 0, len(batch))
		var batchBytes int64
		for _, r := range batch {
			ids = append(ids, r.ID)
			batchBytes += r.ScreenshotSize
		}

		err = c.DB.WithContext(ctx).Model(&Report{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{"screenshot": nil, "screenshot_size": 0, "screenshot_type": ""}).Error
		if err != nil {
			logger.LogError("Prune update failed: %v", err)
			break
		}

		freed += batchBytes
		cleared += len(ids)
		appinfo.DropScreenshot(batchBytes)
		if c.OnClear != nil {
			c.OnClear(ids)
		}

		time.Sleep(20 * time.Millisecond)
	}

	return freed, cleared
}
