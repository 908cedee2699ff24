// ABOUTME: Friend request lifecycle events and the publisher contract
// ABOUTME: Events are emitted after a ledger transition commits

package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Type names a ledger transition.
type Type string

const (
	TypeSent     Type = "friend_request.sent"
	TypeAccepted Type = "friend_request.accepted"
	TypeRejected Type = "friend_request.rejected"
)

// Event describes one committed friend request transition.
type Event struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"request_id"`
	From      string    `json:"from_account"`
	To        string    `json:"to_account"`
	At        time.Time `json:"at"`
}

// Parties returns the two accounts the event concerns.
func (e Event) Parties() [2]string {
	return [2]string{e.From, e.To}
}

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Multi publishes each event to every publisher in order. All publishers are
// attempted; their errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort wraps a publisher so that failures are logged instead of returned.
type BestEffort struct {
	Publisher Publisher
	Logger    *slog.Logger
}

// Publish implements Publisher. It always returns nil.
func (b BestEffort) Publish(ctx context.Context, e Event) error {
	if b.Publisher == nil {
		return nil
	}
	if err := b.Publisher.Publish(ctx, e); err != nil {
		logger := b.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("event publish failed",
			"type", e.Type,
			"request_id", e.RequestID,
			"error", err)
	}
	return nil
}
