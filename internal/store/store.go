// ABOUTME: Store interfaces and data types for friendgraph persistence
// ABOUTME: Defines Account, FriendRequest and the account/ledger store contracts

package store

import (
	"context"
	"errors"
	"time"
)

// Account errors
var (
	// ErrAccountNotFound is returned when a referenced account does not exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailExists is returned when creating an account with an email already in use
	ErrEmailExists = errors.New("email already registered")
)

// Ledger errors
var (
	// ErrRequestNotFound is returned when a friend request id does not exist
	ErrRequestNotFound = errors.New("friend request not found")

	// ErrSelfRequest is returned when an account addresses a request to itself
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")

	// ErrDuplicateRequest is returned when a request already exists for the ordered pair
	ErrDuplicateRequest = errors.New("friend request already sent")

	// ErrRateLimited is returned when the sender has exhausted its send window
	ErrRateLimited = errors.New("friend request rate limit exceeded")

	// ErrNotRecipient is returned when someone other than the recipient responds to a request
	ErrNotRecipient = errors.New("only the recipient may respond to a friend request")

	// ErrNotPending is returned when a transition targets a request that is no longer pending
	ErrNotPending = errors.New("friend request is not pending")
)

// Account is a registered user identity.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // bcrypt hash, never serialized
	CreatedAt    time.Time
}

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// FriendRequest is a directed proposal of friendship from one account to another.
type FriendRequest struct {
	ID          string
	FromAccount string
	ToAccount   string
	Status      RequestStatus
	CreatedAt   time.Time
	RespondedAt *time.Time // set once, by accept or reject
}

// PendingRequest is a pending FriendRequest joined with its sender's profile.
type PendingRequest struct {
	FriendRequest
	FromEmail string
	FromName  string
}

// SendPolicy decides whether a sender may create another request given how
// many it created since Start(now).
type SendPolicy interface {
	Start(now time.Time) time.Time
	Admit(recent int) bool
}

// AccountStore holds account identities.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// Search
	SearchAccountsByEmail(ctx context.Context, fragment string) ([]*Account, error)
	SearchAccountsByName(ctx context.Context, fragment string) ([]*Account, error)
}

// LedgerStore holds the friend request ledger and the projections derived from it.
type LedgerStore interface {
	// CreateFriendRequest inserts a pending request after checking, in the same
	// write transaction, that the target exists, that policy admits the sender
	// and that no request exists for the ordered pair.
	CreateFriendRequest(ctx context.Context, req *FriendRequest, policy SendPolicy) error
	GetFriendRequest(ctx context.Context, id string) (*FriendRequest, error)

	// RespondFriendRequest moves a pending request addressed to recipientID into
	// status with a single conditional update.
	RespondFriendRequest(ctx context.Context, id, recipientID string, status RequestStatus, at time.Time) (*FriendRequest, error)

	ListPendingRequests(ctx context.Context, recipientID string) ([]*PendingRequest, error)
	ListSentSince(ctx context.Context, senderID string, since time.Time) ([]time.Time, error)
	ListFriends(ctx context.Context, accountID string) ([]*Account, error)
}

// Store combines every persistence contract the service needs.
type Store interface {
	AccountStore
	LedgerStore

	Ping(ctx context.Context) error
	Close() error
}
