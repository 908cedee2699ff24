// ABOUTME: Unit tests for JWT issuance, verification and refresh rotation
// ABOUTME: Tests token types, expiry, bad signatures and replayed refresh tokens

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/friendgraph/internal/revocation"
)

// testSecret is a 32-byte secret that meets the MinSecretLength requirement.
var testSecret = []byte("friendgraph-token-test-secret-32")

func newTestIssuer(t *testing.T) *JWTIssuer {
	t.Helper()
	cache := revocation.New(1000)
	t.Cleanup(cache.Close)

	issuer, err := NewJWTIssuer(testSecret, 15*time.Minute, 24*time.Hour, cache)
	require.NoError(t, err)
	return issuer
}

func TestNewJWTIssuer_Validation(t *testing.T) {
	cache := revocation.New(10)
	defer cache.Close()

	_, err := NewJWTIssuer([]byte("short"), time.Minute, time.Hour, cache)
	assert.ErrorIs(t, err, ErrSecretTooShort)

	_, err = NewJWTIssuer(testSecret, 0, time.Hour, cache)
	assert.Error(t, err)

	_, err = NewJWTIssuer(testSecret, time.Minute, time.Hour, nil)
	assert.Error(t, err)
}

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)

	pair, err := issuer.IssuePair("acct-123")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	access, err := issuer.Verify(pair.Access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", access.Subject)
	assert.Equal(t, TokenAccess, access.Type)
	assert.NotEmpty(t, access.ID)

	refresh, err := issuer.Verify(pair.Refresh, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", refresh.Subject)
	assert.NotEqual(t, access.ID, refresh.ID, "each token gets its own jti")
}

func TestJWTIssuer_WrongType(t *testing.T) {
	issuer := newTestIssuer(t)
	pair, err := issuer.IssuePair("acct-123")
	require.NoError(t, err)

	_, err = issuer.Verify(pair.Refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = issuer.Verify(pair.Access, TokenRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestJWTIssuer_InvalidTokens(t *testing.T) {
	issuer := newTestIssuer(t)

	otherCache := revocation.New(10)
	defer otherCache.Close()
	other, err := NewJWTIssuer([]byte("a-completely-different-secret-32b"), time.Hour, time.Hour, otherCache)
	require.NoError(t, err)
	foreign, err := other.IssuePair("acct-123")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-123",
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt-token"},
		{"malformed JWT", "header.payload.signature"},
		{"wrong secret", foreign.Access},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token, TokenAccess)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTIssuer_ExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	pair, err := issuer.IssuePair("acct-123")
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = issuer.Verify(pair.Access, TokenAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = issuer.Verify(pair.Refresh, TokenRefresh)
	assert.NoError(t, err, "refresh token outlives the access token")
}

func TestJWTIssuer_MissingSubject(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.sign("", TokenAccess, time.Hour)
	require.NoError(t, err)

	_, err = issuer.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTIssuer_RedeemIsSingleUse(t *testing.T) {
	issuer := newTestIssuer(t)
	pair, err := issuer.IssuePair("acct-123")
	require.NoError(t, err)

	subject, err := issuer.Redeem(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", subject)

	_, err = issuer.Redeem(pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenReplayed)

	_, err = issuer.Redeem(pair.Access)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}
