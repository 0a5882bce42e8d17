package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"snapreport/internal/database"
	"snapreport/pkg/logger"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("identity: session not found")

// SessionUser is what a session lookup yields.
type SessionUser struct {
	UserID string
	Email  string
}

// SessionStore looks up ambient sessions. Session issuance happens outside
// the resolver.
type SessionStore interface {
	LookupSession(ctx context.Context, token string) (*SessionUser, error)
}

// SessionProvider resolves a session cookie through a SessionStore.
type SessionProvider struct {
	Store      SessionStore
	CookieName string
}

func (s SessionProvider) Resolve(r *http.Request) (*Claim, bool) {
	if s.Store == nil {
		return nil, false
	}
	c, err := r.Cookie(s.CookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return nil, false
	}

	u, err := s.Store.LookupSession(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			logger.LogError("session lookup failed: %v", err)
		}
		return nil, false
	}
	return &Claim{Kind: KindSession, UserID: u.UserID, Email: u.Email}, true
}

// Sessions is the gorm-backed SessionStore.
type Sessions struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

func (s *Sessions) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sessions) LookupSession(ctx context.Context, token string) (*SessionUser, error) {
	var row struct {
		UserID string
		Email  string
	}
	err := s.DB.WithContext(ctx).
		Table("sessions").
		Select("sessions.user_id AS user_id, users.email AS email").
		Joins("JOIN users ON users.id = sessions.user_id").
		Where("sessions.token = ? AND sessions.expires_at > ?", token, s.now()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	return &SessionUser{UserID: row.UserID, Email: row.Email}, nil
}

// Create opens a session for userID and returns its cookie value.
func (s *Sessions) Create(ctx context.Context, userID string) (*database.Session, error) {
	tok, err := NewSessionToken()
	if err != nil {
		return nil, err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	sess := &database.Session{Token: tok, UserID: userID, ExpiresAt: s.now().Add(ttl)}
	if err := s.DB.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Revoke deletes a session.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	return s.DB.WithContext(ctx).Where("token = ?", token).Delete(&database.Session{}).Error
}

// EnsureUser finds a user by email or creates one with the USER role.
func (s *Sessions) EnsureUser(ctx context.Context, email, name string) (*database.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	var u database.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	u = database.User{ID: uuid.NewString(), Email: email, Name: name, Role: database.RoleUser}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// NewSessionToken returns 32 random bytes, hex encoded.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
