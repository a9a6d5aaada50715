// ABOUTME: Tests for bearer extraction, static tokens and request authentication
// ABOUTME: Covers required and optional auth with JWT and static verifiers

package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/mcp/sse", nil)
	assert.Empty(t, BearerToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", BearerToken(r))

	r = httptest.NewRequest("GET", "/mcp/sse?token=xyz", nil)
	assert.Equal(t, "xyz", BearerToken(r))

	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Equal(t, "xyz", BearerToken(r), "non-bearer header falls back to query")
}

func TestStaticTokens(t *testing.T) {
	tokens := NewStaticTokens(map[string]string{"seeded": "ops", "": "ignored"})
	assert.Equal(t, 1, tokens.Count())

	p, err := tokens.Verify("seeded")
	require.NoError(t, err)
	assert.Equal(t, "ops", p)

	_, err = tokens.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tokens.Verify("unknown")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator(t *testing.T) {
	jwtv, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	good, err := jwtv.Generate("alice", time.Hour)
	require.NoError(t, err)
	static := NewStaticTokens(map[string]string{"static-token": "bob"})

	tests := []struct {
		name      string
		auth      *Authenticator
		token     string
		principal string
		wantErr   error
	}{
		{name: "disabled", auth: NewAuthenticator(true), token: "", principal: ""},
		{name: "nil authenticator", auth: nil, token: "anything", principal: ""},
		{name: "jwt", auth: NewAuthenticator(true, jwtv, static), token: good, principal: "alice"},
		{name: "static", auth: NewAuthenticator(true, jwtv, static), token: "static-token", principal: "bob"},
		{name: "missing required", auth: NewAuthenticator(true, jwtv), token: "", wantErr: ErrMissingToken},
		{name: "missing optional", auth: NewAuthenticator(false, jwtv), token: "", principal: ""},
		{name: "bad token optional", auth: NewAuthenticator(false, jwtv, static), token: "nope", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/mcp", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			p, err := tt.auth.Authenticate(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.principal, p)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), "alice")
	p, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", p)
}
