// Package appinfo holds process-wide counters surfaced by the health endpoint.
package appinfo

import (
	"sync/atomic"
	"time"
)

var (
	StartTime = time.Now()

	TotalReports    atomic.Int64
	ScreenshotBytes atomic.Int64
	TotalUpvotes    atomic.Int64
)

// AddReport records a newly stored report and its screenshot size.
func AddReport(screenshotSize int64) {
	TotalReports.Add(1)
	ScreenshotBytes.Add(screenshotSize)
}

// DropScreenshot records screenshot bytes released by the cleaner.
func DropScreenshot(size int64) {
	ScreenshotBytes.Add(-size)
}

// UpvoteDelta applies +1 for an inserted edge and -1 for a removed one.
func UpvoteDelta(upvoted bool) {
	if upvoted {
		TotalUpvotes.Add(1)
		return
	}
	TotalUpvotes.Add(-1)
}

// SetInitialStats stores the counts read from the database at startup.
func SetInitialStats(reports, screenshotBytes, upvotes int64) {
	TotalReports.Store(reports)
	ScreenshotBytes.Store(screenshotBytes)
	TotalUpvotes.Store(upvotes)
}

func Uptime() time.Duration {
	return time.Since(StartTime)
}
