package identity

import (
	"net/http"
)

// Provider inspects one credential form. It returns ok=false to abstain:
// a missing, malformed or rejected credential is not an error, it simply
// lets the next provider try.
type Provider interface {
	Resolve(r *http.Request) (claim *Claim, ok bool)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(r *http.Request) (*Claim, bool)

func (f ProviderFunc) Resolve(r *http.Request) (*Claim, bool) { return f(r) }

// Resolver walks providers in order and stops at the first identity.
type Resolver struct {
	providers []Provider
}

// NewResolver builds a chain. The usual order is bearer token, then session.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve returns the first resolved claim or ErrUnauthenticated when every
// provider abstains.
func (res *Resolver) Resolve(r *http.Request) (*Claim, error) {
	for _, p := range res.providers {
		if c, ok := p.Resolve(r); ok && c != nil && c.UserID != "" {
			return c, nil
		}
	}
	return nil, ErrUnauthenticated
}

// Middleware attaches the resolved claim, if any, to the request context.
// It never rejects; handlers decide whether identity is required.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := res.Resolve(r); err == nil {
			r = r.WithContext(WithClaim(r.Context(), c))
		}
		next.ServeHTTP(w, r)
	})
}
