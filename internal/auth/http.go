// ABOUTME: Bearer token extraction and request authentication for HTTP handlers
// ABOUTME: Tries each configured verifier and carries the principal via context

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingToken is returned when auth is required and no token was sent.
var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts a token from the Authorization header. It falls back
// to the token query parameter since EventSource clients cannot set headers.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Authenticator checks requests against a list of verifiers.
type Authenticator struct {
	verifiers []TokenVerifier
	required  bool
}

// NewAuthenticator creates an Authenticator. When required is false,
// requests without a token pass anonymously but a bad token still fails.
func NewAuthenticator(required bool, verifiers ...TokenVerifier) *Authenticator {
	return &Authenticator{verifiers: verifiers, required: required}
}

// Enabled reports whether any verifier is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.verifiers) > 0
}

// Authenticate returns the principal for the request, or "" for an
// anonymous request that is allowed through.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	token := BearerToken(r)
	if token == "" {
		if a.required {
			return "", ErrMissingToken
		}
		return "", nil
	}

	var errs []error
	for _, v := range a.verifiers {
		principal, err := v.Verify(token)
		if err == nil {
			return principal, nil
		}
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}

type principalKey struct{}

// WithPrincipal returns a new context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}
