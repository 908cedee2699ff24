// ABOUTME: JWT access and refresh token issuance and verification
// ABOUTME: HS256 signing, typed tokens, single-use refresh rotation

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/friendgraph/internal/revocation"
)

// MinSecretLength is the shortest HS256 secret the issuer accepts.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrTokenReplayed  = errors.New("refresh token already used")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by every token: sub, iat, exp, jti and typ.
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to clients.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string, typ TokenType) (*Claims, error)
}

// JWTIssuer issues and verifies HS256 signed tokens.
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	redeemed   *revocation.Cache
	now        func() time.Time
}

// NewJWTIssuer creates an issuer. redeemed tracks refresh tokens that have
// already been exchanged.
func NewJWTIssuer(secret []byte, accessTTL, refreshTTL time.Duration, redeemed *revocation.Cache) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if redeemed == nil {
		return nil, errors.New("refresh token cache is required")
	}
	return &JWTIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		redeemed:   redeemed,
		now:        time.Now,
	}, nil
}

// IssuePair creates a fresh access and refresh token for accountID.
func (i *JWTIssuer) IssuePair(accountID string) (*TokenPair, error) {
	access, err := i.sign(accountID, TokenAccess, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := i.sign(accountID, TokenRefresh, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (i *JWTIssuer) sign(subject string, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the signature, expiry and type of tokenString and returns its claims.
func (i *JWTIssuer) Verify(tokenString string, typ TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.Type, typ)
	}
	return claims, nil
}

// Redeem verifies a refresh token and marks it used. A second redemption of
// the same token fails with ErrTokenReplayed. Returns the token's subject.
func (i *JWTIssuer) Redeem(refreshToken string) (string, error) {
	claims, err := i.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	if !i.redeemed.Redeem(claims.ID, claims.ExpiresAt.Time) {
		return "", ErrTokenReplayed
	}
	return claims.Subject, nil
}
