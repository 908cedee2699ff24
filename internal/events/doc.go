// Package events distributes friend request transitions after they commit.
//
// Every successful send, accept or reject produces an Event. Publishers:
//
//   - Broadcaster: in-process fan-out to subscribers of the sender and the
//     recipient, used by the /events stream
//   - NATSPublisher: JSON on <prefix>.sent, <prefix>.accepted and
//     <prefix>.rejected (prefix defaults to "friends.request")
//   - Multi: one event to several publishers
//   - BestEffort: logs failures instead of returning them
//
// Publishing never affects the ledger. A failed publish is logged and the
// transition stands.
package events
