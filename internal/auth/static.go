// ABOUTME: Static bearer token table mapping opaque tokens to principals
// ABOUTME: Seeded from the auth.tokens config section; needs no signing secret

package auth

// StaticTokens is a TokenVerifier backed by a fixed token to principal map.
// It is read-only after construction.
type StaticTokens struct {
	tokens map[string]string // token -> principal
}

// NewStaticTokens creates a token table from seed. Entries with an empty
// token or principal are skipped.
func NewStaticTokens(seed map[string]string) *StaticTokens {
	tokens := make(map[string]string, len(seed))
	for token, principal := range seed {
		if token != "" && principal != "" {
			tokens[token] = principal
		}
	}
	return &StaticTokens{tokens: tokens}
}

// Verify implements TokenVerifier.
func (s *StaticTokens) Verify(token string) (string, error) {
	principal, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return principal, nil
}

// Count returns the number of usable tokens.
func (s *StaticTokens) Count() int { return len(s.tokens) }
