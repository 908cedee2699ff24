// Package store provides persistent storage for friendgraph using SQLite.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - AccountStore: account identities and account search
//   - LedgerStore: the friend request ledger and its projections
//   - Store: both of the above plus Ping/Close
//
// SQLiteStore implements all interfaces in a single struct.
//
// # Data Models
//
//   - Account: registered identity (id, email, name, bcrypt hash)
//   - FriendRequest: directed request with status pending, accepted or rejected
//   - PendingRequest: a pending FriendRequest joined with the sender's profile
//
// Friendship is not stored. ListFriends projects it from accepted requests in
// either direction on every call.
//
// # Ledger Invariants
//
// The schema enforces them where it can:
//
//	UNIQUE (from_account, to_account)
//	CHECK (from_account <> to_account)
//	CHECK (status IN ('pending', 'accepted', 'rejected'))
//
// Status transitions are single conditional updates keyed by
// (id, to_account, status = 'pending'). Rows are never deleted.
//
// # SQLite Configuration
//
// Two drivers are supported, selected by name:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//
// Both are opened with WAL, foreign keys, a busy timeout and
// _txlock=immediate, so write transactions serialize instead of failing
// with SQLITE_BUSY on upgrade.
//
// # Error Handling
//
// Common errors:
//
//   - ErrAccountNotFound, ErrEmailExists
//   - ErrRequestNotFound, ErrSelfRequest, ErrDuplicateRequest
//   - ErrRateLimited, ErrNotRecipient, ErrNotPending
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore with a path under t.TempDir() for integration tests.
package store
