package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"snapreport/internal/appinfo"
	"snapreport/pkg/logger"
)

var DB *gorm.DB

// InitDB opens the configured database into DB and exits when it cannot.
func InitDB(path string) {
	db, err := Open(path)
	if err != nil {
		logger.LogFatal("Database connection failed: %v", err)
	}
	DB = db

	loadInitialStats(DB)
	logger.LogInfo("Database initialized successfully")
}

// Open connects to the SQLite file at path with WAL tuning, configures the
// pool and runs migrations.
func Open(path string) (*gorm.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	// WAL gives concurrent readers with a single writer; busy_timeout makes
	// the driver wait for the write lock instead of failing.
	dsn := fmt.Sprintf(
		"%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on&_cache_size=-20000",
		path,
	)

	gormConfig := &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, err
	}

	if err := configurePool(db); err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0750)
	}
	return nil
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("retrieve generic database interface: %w", err)
	}

	// One writer at a time on the single SQLite file.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	return nil
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Session{}, &Report{}, &Upvote{}, &Comment{}); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports(status, created_at DESC);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_upvotes_user_report ON upvotes(user_id, report_id);",
	}

	for _, idx := range indices {
		if err := db.Exec(idx).Error; err != nil {
			logger.LogWarn("Failed to create index: %v", err)
		}
	}
	return nil
}

func loadInitialStats(db *gorm.DB) {
	var count int64
	var totalSize int64

	row := db.Model(&Report{}).Select("count(*), IFNULL(SUM(screenshot_size), 0)").Row()
	if err := row.Scan(&count, &totalSize); err != nil {
		logger.LogWarn("Failed to load initial stats: %v", err)
		return
	}

	var upvotes int64
	if err := db.Model(&Upvote{}).Count(&upvotes).Error; err != nil {
		logger.LogWarn("Failed to count upvotes: %v", err)
	}

	appinfo.SetInitialStats(count, totalSize, upvotes)
}
