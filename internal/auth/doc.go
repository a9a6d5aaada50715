// Package auth authenticates MCP HTTP clients.
//
// # Verifiers
//
// Two TokenVerifier implementations are provided:
//
//   - JWTVerifier: HS256 tokens signed with the configured jwt_secret. The
//     principal is taken from the "sub" claim.
//   - StaticTokens: a fixed table of opaque tokens from the auth.tokens
//     config section, for single-operator setups without a signing secret.
//
// # Requests
//
// Authenticator tries each verifier in turn against the bearer token:
//
//	Authorization: Bearer <token>
//
// SSE clients that cannot set headers may pass ?token=<token> instead. When
// auth is not required, requests without a token pass anonymously. The
// authenticated principal travels in the request context (WithPrincipal)
// and owns any MCP session it creates.
package auth
