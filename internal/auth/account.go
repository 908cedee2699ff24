// ABOUTME: Account factory and password login
// ABOUTME: Normalizes email, hashes credentials with bcrypt, verifies logins in constant time

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/friendgraph/internal/store"
)

// Account validation limits.
const (
	MinPasswordLength = 8
	MaxNameLength     = 255
)

// Account errors
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrNameTooLong        = fmt.Errorf("name must be at most %d characters", MaxNameLength)
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// dummyHash is compared against when the account does not exist so that
// unknown emails take as long as wrong passwords.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

// CredentialStore is the subset of the account store used for login.
type CredentialStore interface {
	GetAccountByEmail(ctx context.Context, email string) (*store.Account, error)
}

// NormalizeEmail trims the address and lowercases its domain part.
// The local part is kept as entered.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:]), nil
}

// NewAccount builds a validated account with a fresh id and a bcrypt hash of
// password. It does not persist anything; store.CreateAccount enforces email
// uniqueness.
func NewAccount(email, name, password string) (*store.Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrNameTooLong
	}

	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	return &store.Account{
		ID:           uuid.NewString(),
		Email:        normalized,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Authenticate checks email and password against the stored account.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func Authenticate(ctx context.Context, accounts CredentialStore, email, password string) (*store.Account, error) {
	account, err := accounts.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}
