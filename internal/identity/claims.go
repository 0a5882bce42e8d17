// Package identity resolves the acting user of a request from one of two
// credential forms: an extension bearer token or an ambient session cookie.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthenticated means no provider could resolve an identity.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Kind tells which credential produced a Claim.
type Kind string

const (
	KindSession Kind = "session"
	KindToken   Kind = "token"
)

// Claim is the resolved caller. IssuedAt and ExpiresAt are set for token
// claims only. Claims are built per request and never stored.
type Claim struct {
	Kind      Kind
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claimKey struct{}

// WithClaim stores c on ctx.
func WithClaim(ctx context.Context, c *Claim) context.Context {
	return context.WithValue(ctx, claimKey{}, c)
}

// FromContext returns the claim stored by WithClaim, or nil.
func FromContext(ctx context.Context) *Claim {
	c, _ := ctx.Value(claimKey{}).(*Claim)
	return c
}
