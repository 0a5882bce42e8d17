package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (*Cleaner, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &Cleaner{DB: db, Path: path}, path
}

func TestPurgeExpiredSessions(t *testing.T) {
	t.Parallel()

	c, _ := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }

	if err := c.DB.Create(&User{ID: "u1", Email: "a@example.com", Role: RoleUser}).Error; err != nil {
		t.Fatal(err)
	}
	sessions := []Session{
		{Token: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)},
		{Token: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)},
	}
	if err := c.DB.Create(&sessions).Error; err != nil {
		t.Fatal(err)
	}

	n, err := c.PurgeExpiredSessions(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredSessions = %d, %v; want 1", n, err)
	}
	var left int64
	c.DB.Model(&Session{}).Count(&left)
	if left != 1 {
		t.Fatalf("sessions left = %d, want 1", left)
	}
}

func TestClearResolvedScreenshots(t *testing.T) {
	t.Parallel()

	c, _ := openTestDB(t)
	var notified []string
	c.OnClear = func(ids []string) { notified = append(notified, ids...) }

	if err := c.DB.Create(&User{ID: "u1", Email: "a@example.com", Role: RoleUser}).Error; err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []Report{
		{ID: "r-old", Text: "a", AuthorID: "u1", Status: StatusResolved, Screenshot: make([]byte, 100), ScreenshotSize: 100, CreatedAt: base},
		{ID: "r-open", Text: "b", AuthorID: "u1", Status: StatusOpen, Screenshot: make([]byte, 100), ScreenshotSize: 100, CreatedAt: base.Add(time.Hour)},
		{ID: "r-new", Text: "c", AuthorID: "u1", Status: StatusResolved, Screenshot: make([]byte, 50), ScreenshotSize: 50, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range rows {
		if err := c.DB.Omit("Author", "Upvotes", "Comments").Create(&rows[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	freed, cleared := c.ClearResolvedScreenshots(context.Background(), 1)
	if freed != 150 || cleared != 2 {
		t.Fatalf("ClearResolvedScreenshots = %d bytes, %d reports; want 150, 2", freed, cleared)
	}
	if len(notified) != 2 {
		t.Fatalf("OnClear ids = %v", notified)
	}

	var open Report
	if err := c.DB.First(&open, "id = ?", "r-open").Error; err != nil {
		t.Fatal(err)
	}
	if len(open.Screenshot) != 100 {
		t.Fatalf("open report lost its screenshot")
	}
	var resolved Report
	if err := c.DB.First(&resolved, "id = ?", "r-old").Error; err != nil {
		t.Fatal(err)
	}
	if resolved.Screenshot != nil || resolved.ScreenshotSize != 0 {
		t.Fatalf("resolved report kept screenshot: %d bytes", resolved.ScreenshotSize)
	}
}
