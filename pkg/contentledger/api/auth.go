package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// IdentityHeader carries the caller identity when header identities are
// enabled (development only)
const IdentityHeader = "X-Identity"

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the authenticated caller
func WithIdentity(ctx context.Context, who contentledger.Identity) context.Context {
	return context.WithValue(ctx, identityKey, who)
}

// IdentityFromContext returns the authenticated caller stored by the Authenticator
func IdentityFromContext(ctx context.Context) (contentledger.Identity, bool) {
	who, ok := ctx.Value(identityKey).(contentledger.Identity)
	return who, ok && !who.IsZero()
}

// NewJWTAuth returns an HS256 token verifier for secret
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken mints a bearer token naming subject, valid for ttl
func IssueToken(secret string, subject contentledger.Identity, ttl time.Duration) (string, error) {
	if subject.IsZero() {
		return "", errors.New("subject is required")
	}
	claims := map[string]interface{}{"sub": string(subject)}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := NewJWTAuth(secret).Encode(claims)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Authenticator resolves the caller of every request and rejects requests
// without one. A verified bearer token's "sub" claim takes precedence over
// the identity header.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if who, ok := h.resolveIdentity(r); ok {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), who)))
			return
		}
		h.writeError(w, r, contentledger.ErrUnauthenticated)
	})
}

func (h *Handler) resolveIdentity(r *http.Request) (contentledger.Identity, bool) {
	if h.auth != nil {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err == nil && token != nil {
			if sub, ok := claims["sub"].(string); ok && sub != "" {
				return contentledger.Identity(sub), true
			}
		}
	}
	if h.headerIdentity {
		if who := r.Header.Get(IdentityHeader); who != "" {
			return contentledger.Identity(who), true
		}
	}
	return "", false
}
