// Package social implements the friend graph: the friend request state
// machine, the friendship view derived from it, and account search.
//
// # Request Lifecycle
//
//	send    -> pending
//	accept  pending -> accepted   (recipient only)
//	reject  pending -> rejected   (recipient only)
//
// Accepted and rejected are terminal. A request for an ordered pair can be
// sent once, ever; a counter-request in the other direction is a separate
// request and does not accept the first.
//
// # Rate Limiting
//
// Each account may send at most three requests in any trailing minute. The
// count is taken over the ledger's own created_at values inside the send
// transaction, so there is no separate counter to drift.
//
// # Errors
//
// Service returns errors matching ErrNotFound, ErrInvalidOperand,
// ErrConflict, ErrForbidden, ErrInvalidState, ErrRateLimited or
// ErrInvalidArgument. Rate limit denials are *RateLimitError values carrying
// a retry hint.
//
// # Side Effects
//
// Successful transitions are published to an events.Publisher after commit
// and counted in friendgraph_friend_requests_total. Publishing failures are
// logged and never undo a transition.
package social
