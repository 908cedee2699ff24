// Package ratelimit bounds how fast accounts and clients may act.
//
// SlidingWindow is the friend request send limit: at most Limit sends in any
// trailing Span. It keeps no state of its own. The ledger counts the
// sender's rows whose created_at falls in [now-Span, now] inside the same
// write transaction as the insert, so the count and the new row are atomic.
// Limiter reads the same rows to report a Quota (remaining sends and how long
// until the next slot frees).
//
// ClientThrottle is a separate token bucket per remote host, used in front of
// signup and login.
package ratelimit
