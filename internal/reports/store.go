// Package reports persists reports, upvote edges and comments.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"snapreport/internal/appinfo"
	"snapreport/internal/database"
	"snapreport/internal/ingest"
)

var (
	ErrNotFound      = errors.New("reports: not found")
	ErrForbidden     = errors.New("reports: forbidden")
	ErrInvalidStatus = errors.New("reports: invalid status")
)

// Sort orders for List.
const (
	SortNew = "new"
	SortTop = "top"
)

// ParseStatus normalizes a status filter. Empty input means no filter.
func ParseStatus(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "", database.StatusOpen, database.StatusTriaged, database.StatusResolved:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Summary is one row of the report listing.
type Summary struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	AuthorName    string    `json:"authorName"`
	AuthorEmail   string    `json:"authorEmail"`
	Upvotes       int64     `json:"upvotes"`
	Comments      int64     `json:"comments"`
	HasScreenshot bool      `json:"hasScreenshot"`
}

// CommentView is a comment with its author resolved.
type CommentView struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Detail is a single report with everything the detail view shows.
type Detail struct {
	Summary
	ClientJSON     *string       `json:"client,omitempty"`
	Screenshot     []byte        `json:"-"`
	ScreenshotType string        `json:"-"`
	CommentList    []CommentView `json:"commentList"`
}

// ToggleResult is the outcome of an upvote toggle.
type ToggleResult struct {
	Upvoted bool  `json:"upvoted"`
	Upvotes int64 `json:"upvotes"`
}

// Store is the gorm-backed report store.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Create stores a validated report authored by authorID.
func (s *Store) Create(ctx context.Context, authorID string, v *ingest.ValidatedReport) (*database.Report, error) {
	r := &database.Report{
		ID:             uuid.NewString(),
		Text:           v.Text,
		URL:            v.URL,
		Title:          v.Title,
		ClientJSON:     v.ClientJSON,
		AuthorID:       authorID,
		Status:         database.StatusOpen,
		Screenshot:     v.Screenshot,
		ScreenshotType: v.ScreenshotType,
		ScreenshotSize: int64(len(v.Screenshot)),
	}
	if err := s.DB.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	appinfo.AddReport(r.ScreenshotSize)
	return r, nil
}

const summaryColumns = `reports.id, reports.text, reports.url, reports.title, reports.status, reports.created_at,
	users.name AS author_name, users.email AS author_email,
	(SELECT COUNT(*) FROM upvotes WHERE upvotes.report_id = reports.id) AS upvotes,
	(SELECT COUNT(*) FROM comments WHERE comments.report_id = reports.id) AS comments,
	(reports.screenshot IS NOT NULL AND LENGTH(reports.screenshot) > 0) AS has_screenshot`

// List returns reports filtered by status (already parsed) in the given
// order. Unknown sorts fall back to SortNew.
func (s *Store) List(ctx context.Context, sort, status string, limit int) ([]Summary, error) {
	q := s.DB.WithContext(ctx).
		Table("reports").
		Select(summaryColumns).
		Joins("LEFT JOIN users ON users.id = reports.author_id")

	if status != "" {
		q = q.Where("reports.status = ?", status)
	}
	if sort == SortTop {
		q = q.Order("upvotes DESC").Order("reports.created_at DESC")
	} else {
		q = q.Order("reports.created_at DESC")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	out := []Summary{}
	if err := q.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

// Get returns one report with its comments in ascending order.
func (s *Store) Get(ctx context.Context, id string) (*Detail, error) {
	var row struct {
		Summary
		ClientJSON     *string
		Screenshot     []byte
		ScreenshotType string
	}
	err := s.DB.WithContext(ctx).
		Table("reports").
		Select(summaryColumns+", reports.client_json, reports.screenshot, reports.screenshot_type").
		Joins("LEFT JOIN users ON users.id = reports.author_id").
		Where("reports.id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	comments := []CommentView{}
	err = s.DB.WithContext(ctx).
		Table("comments").
		Select("comments.id, comments.text, comments.created_at, users.name AS author_name, users.email AS author_email").
		Joins("LEFT JOIN users ON users.id = comments.author_id").
		Where("comments.report_id = ?", id).
		Order("comments.created_at ASC").
		Scan(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	return &Detail{
		Summary:        row.Summary,
		ClientJSON:     row.ClientJSON,
		Screenshot:     row.Screenshot,
		ScreenshotType: row.ScreenshotType,
		CommentList:    comments,
	}, nil
}

// Screenshot returns the stored screenshot bytes and type. A report without
// a screenshot is ErrNotFound.
func (s *Store) Screenshot(ctx context.Context, id string) ([]byte, string, error) {
	var r database.Report
	err := s.DB.WithContext(ctx).Select("id, screenshot, screenshot_type").Where("id = ?", id).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get screenshot: %w", err)
	}
	if len(r.Screenshot) == 0 {
		return nil, "", ErrNotFound
	}
	ct := r.ScreenshotType
	if ct == "" {
		ct = "image/png"
	}
	return r.Screenshot, ct, nil
}

// ToggleUpvote flips the (userID, reportID) edge and recounts. Delete and
// conditional insert run in one transaction over the unique pair key, so two
// racing toggles cannot both insert.
func (s *Store) ToggleUpvote(ctx context.Context, userID, reportID string) (ToggleResult, error) {
	var res ToggleResult

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reportExists(tx, reportID); err != nil {
			return err
		}

		del := tx.Where("user_id = ? AND report_id = ?", userID, reportID).Delete(&database.Upvote{})
		if del.Error != nil {
			return fmt.Errorf("delete upvote: %w", del.Error)
		}

		if del.RowsAffected == 0 {
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&database.Upvote{UserID: userID, ReportID: reportID})
			if ins.Error != nil {
				return fmt.Errorf("insert upvote: %w", ins.Error)
			}
			res.Upvoted = true
		}

		if err := tx.Model(&database.Upvote{}).Where("report_id = ?", reportID).Count(&res.Upvotes).Error; err != nil {
			return fmt.Errorf("count upvotes: %w", err)
		}
		return nil
	})
	if err != nil {
		return ToggleResult{}, err
	}

	appinfo.UpvoteDelta(res.Upvoted)
	return res, nil
}

// AddComment stores an already validated comment.
func (s *Store) AddComment(ctx context.Context, userID, reportID, text string) (*database.Comment, error) {
	c := &database.Comment{
		ID:       uuid.NewString(),
		Text:     text,
		AuthorID: userID,
		ReportID: reportID,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reportExists(tx, reportID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(c).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

// SetStatus changes a report's status. Only triagers may do this.
func (s *Store) SetStatus(ctx context.Context, userID, reportID, status string) error {
	status, err := ParseStatus(status)
	if err != nil || status == "" {
		return ErrInvalidStatus
	}

	var u database.User
	err = s.DB.WithContext(ctx).Select("id, role").Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u.Role != database.RoleTriager {
		return ErrForbidden
	}

	res := s.DB.WithContext(ctx).Model(&database.Report{}).Where("id = ?", reportID).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func reportExists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&database.Report{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("find report: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
