// ABOUTME: In-memory fan-out of friend request events to connected accounts
// ABOUTME: Feeds the per-account server-sent event stream

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub keyed by account id. An event is
// delivered to every subscriber of its sender and of its recipient.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // accountID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events concerning accountID.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled. After Close, the returned channel is already closed.
func (b *Broadcaster) Subscribe(ctx context.Context, accountID string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[accountID]; !ok {
		b.subscribers[accountID] = make(map[string]chan Event)
	}
	b.subscribers[accountID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"account_id", accountID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(accountID, subID)
	}()

	return ch, subID
}

// Publish implements Publisher. Non-blocking: events are dropped for
// subscribers whose channels are full.
func (b *Broadcaster) Publish(_ context.Context, e Event) error {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, accountID := range e.Parties() {
		for subID, ch := range b.subscribers[accountID] {
			select {
			case ch <- e:
			default:
				b.logger.Debug("dropped event for slow subscriber",
					"account_id", accountID,
					"sub_id", subID,
					"request_id", e.RequestID)
			}
		}
	}
	return nil
}

// Subscribers returns how many subscriptions exist for accountID.
func (b *Broadcaster) Subscribers(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[accountID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(accountID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[accountID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, accountID)
	}

	b.logger.Debug("subscriber removed",
		"account_id", accountID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for accountID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, accountID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
