package database

import (
	"time"
)

// Report statuses.
const (
	StatusOpen     = "OPEN"
	StatusTriaged  = "TRIAGED"
	StatusResolved = "RESOLVED"
)

// User roles.
const (
	RoleUser    = "USER"
	RoleTriager = "TRIAGER"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Email     string    `gorm:"uniqueIndex;type:text" json:"email"`
	Name      string    `json:"name"`
	Role      string    `gorm:"type:text;not null;default:USER" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an ambient login bound to a cookie value.
type Session struct {
	Token     string    `gorm:"primaryKey;type:text"`
	UserID    string    `gorm:"index;type:text;not null"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

type Report struct {
	ID         string  `gorm:"primaryKey;type:text"`
	Text       string  `gorm:"type:text;not null"`
	URL        string  `gorm:"type:text;not null;default:''"`
	Title      string  `gorm:"type:text;not null;default:''"`
	ClientJSON *string `gorm:"type:text"`

	Screenshot     []byte `gorm:"type:blob"`
	ScreenshotType string `gorm:"type:text"` // sniffed, e.g. "image/png"
	ScreenshotSize int64

	AuthorID string `gorm:"index;type:text;not null"`
	Author   User   `gorm:"foreignKey:AuthorID"`

	Status    string    `gorm:"index;type:text;not null;default:OPEN"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Upvotes  []Upvote  `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE;"`
	Comments []Comment `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE;"`
}

// Upvote is a (user, report) edge. Its presence is the vote; the composite
// primary key is the uniqueness constraint the toggle relies on.
type Upvote struct {
	UserID    string `gorm:"primaryKey;type:text"`
	ReportID  string `gorm:"primaryKey;type:text;index"`
	CreatedAt time.Time
}

type Comment struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Text      string    `gorm:"type:text;not null"`
	AuthorID  string    `gorm:"index;type:text;not null"`
	Author    User      `gorm:"foreignKey:AuthorID"`
	ReportID  string    `gorm:"index;type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}
