// Package auth provides account credentials and request authentication for friendgraph.
//
// # Accounts
//
// NewAccount is the only way accounts are built. It trims input, lowercases
// the email domain, rejects passwords shorter than MinPasswordLength and
// stores a bcrypt hash. Authenticate verifies a login and performs a dummy
// bcrypt comparison for unknown emails so both failure modes take the same time.
//
// # Tokens
//
// JWTIssuer signs HS256 tokens with the configured jwt_secret. Every token
// carries sub, iat, exp, jti and typ claims:
//
//	pair, err := issuer.IssuePair(accountID)      // access + refresh
//	claims, err := issuer.Verify(token, TokenAccess)
//	accountID, err := issuer.Redeem(pair.Refresh)  // single use
//
// Refresh tokens are single use. Their jti is recorded in a revocation.Cache
// until the token expires, and a replay fails with ErrTokenReplayed.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware requires "Authorization: Bearer <access token>", resolves
// the subject to an account and stores an Identity in the request context.
// Handlers read the acting account with FromContext.
package auth
