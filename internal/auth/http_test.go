// ABOUTME: Tests for HTTP authentication middleware and identity context
// ABOUTME: Covers token extraction, token type, account lookup and context propagation

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/friendgraph/internal/store"
)

// mockAccountLookup returns accounts from a map.
type mockAccountLookup struct {
	accounts map[string]*store.Account
	err      error
}

func (m *mockAccountLookup) GetAccount(_ context.Context, id string) (*store.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return a, nil
}

func runMiddleware(t *testing.T, accounts AccountLookup, verifier TokenVerifier, header string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var got *Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(accounts, verifier)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	accounts := &mockAccountLookup{accounts: map[string]*store.Account{
		"acct-1": {ID: "acct-1", Email: "ann@example.com", Name: "Ann"},
	}}
	pair, err := issuer.IssuePair("acct-1")
	require.NoError(t, err)

	rec, id := runMiddleware(t, accounts, issuer, "Bearer "+pair.Access)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "acct-1", id.AccountID)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.Equal(t, "Ann", id.Name)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	issuer := newTestIssuer(t)
	accounts := &mockAccountLookup{accounts: map[string]*store.Account{
		"acct-1": {ID: "acct-1", Email: "ann@example.com"},
	}}
	pair, err := issuer.IssuePair("acct-1")
	require.NoError(t, err)
	ghost, err := issuer.IssuePair("acct-deleted")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"garbage", "Bearer not-a-token", "invalid token"},
		{"refresh token", "Bearer " + pair.Refresh, "invalid token"},
		{"unknown account", "Bearer " + ghost.Access, "account not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, id := runMiddleware(t, accounts, issuer, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, id, "handler must not run")
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestHTTPAuthMiddleware_LookupFailure(t *testing.T) {
	issuer := newTestIssuer(t)
	pair, err := issuer.IssuePair("acct-1")
	require.NoError(t, err)

	rec, id := runMiddleware(t, &mockAccountLookup{err: errors.New("db down")}, issuer, "Bearer "+pair.Access)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, id)
}

func TestHTTPAuthMiddleware_ExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := issuer.IssuePair("acct-1")
	require.NoError(t, err)
	issuer.now = time.Now

	accounts := &mockAccountLookup{accounts: map[string]*store.Account{"acct-1": {ID: "acct-1"}}}
	rec, _ := runMiddleware(t, accounts, issuer, "Bearer "+pair.Access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Panics(t, func() { MustFromContext(ctx) })

	want := &Identity{AccountID: "acct-1"}
	ctx = WithIdentity(ctx, want)
	assert.Same(t, want, FromContext(ctx))
	assert.Same(t, want, MustFromContext(ctx))
}
