package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"snapreport/pkg/logger"
)

// TokenType is the discriminator carried by extension tokens. It keeps a
// token minted for another purpose from being replayed as a bearer
// credential.
const TokenType = "extension"

// DefaultTokenTTL is the fixed lifetime of issued tokens.
const DefaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrTokenInvalid   = errors.New("identity: invalid token")
	ErrTokenWrongType = errors.New("identity: token type is not " + TokenType)
	ErrTokenNoSubject = errors.New("identity: token has no userId")
	ErrSecretMissing  = errors.New("identity: token secret is empty")
)

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Type   string `json:"type"`
}

// Tokens issues and verifies HS256 extension tokens.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (t *Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Issue mints a bearer token for the user.
func (t *Tokens) Issue(userID, email string) (string, time.Time, error) {
	if len(t.Secret) == 0 {
		return "", time.Time{}, ErrSecretMissing
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := t.now()
	exp := now.Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
		Email:  email,
		Type:   TokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and type, and returns a token claim.
// The signing method is pinned to HS256.
func (t *Tokens) Verify(raw string) (*Claim, error) {
	if len(t.Secret) == 0 {
		return nil, ErrSecretMissing
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(tok *jwt.Token) (any, error) {
		return t.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if parsed.Type != TokenType {
		return nil, ErrTokenWrongType
	}
	if strings.TrimSpace(parsed.UserID) == "" {
		return nil, ErrTokenNoSubject
	}

	c := &Claim{Kind: KindToken, UserID: parsed.UserID, Email: parsed.Email}
	if parsed.IssuedAt != nil {
		c.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		c.ExpiresAt = parsed.ExpiresAt.Time
	}
	return c, nil
}

// BearerProvider resolves "Authorization: Bearer <token>" headers.
type BearerProvider struct {
	Tokens *Tokens
}

func (b BearerProvider) Resolve(r *http.Request) (*Claim, bool) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, false
	}
	c, err := b.Tokens.Verify(raw)
	if err != nil {
		logger.LogDebug("bearer token rejected, falling through: %v", err)
		return nil, false
	}
	return c, true
}

// BearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
