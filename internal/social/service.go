// ABOUTME: Friend graph service: the request state machine, friendship view and search
// ABOUTME: Translates store errors, publishes committed transitions and records metrics

package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/friendgraph/internal/events"
	"github.com/2389/friendgraph/internal/metrics"
	"github.com/2389/friendgraph/internal/ratelimit"
	"github.com/2389/friendgraph/internal/store"
)

// Store defines what the service needs from storage
type Store interface {
	GetAccount(ctx context.Context, id string) (*store.Account, error)
	SearchAccountsByEmail(ctx context.Context, fragment string) ([]*store.Account, error)
	SearchAccountsByName(ctx context.Context, fragment string) ([]*store.Account, error)

	CreateFriendRequest(ctx context.Context, req *store.FriendRequest, policy store.SendPolicy) error
	RespondFriendRequest(ctx context.Context, id, recipientID string, status store.RequestStatus, at time.Time) (*store.FriendRequest, error)
	ListPendingRequests(ctx context.Context, recipientID string) ([]*store.PendingRequest, error)
	ListSentSince(ctx context.Context, senderID string, since time.Time) ([]time.Time, error)
	ListFriends(ctx context.Context, accountID string) ([]*store.Account, error)
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Window    ratelimit.SlidingWindow
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service owns the friend request workflow. The actor for every operation is
// an already-authenticated account id.
type Service struct {
	store     Store
	limiter   *ratelimit.Limiter
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service over st.
func New(st Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "social")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}

	limiter := ratelimit.New(opts.Window, st)
	limiter.Now = now

	return &Service{
		store:     st,
		limiter:   limiter,
		publisher: events.BestEffort{Publisher: publisher, Logger: logger},
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
	}
}

// Send creates a pending friend request from actorID to targetID.
//
// Errors, in the order they are checked: ErrInvalidOperand (self), ErrNotFound
// (unknown target), ErrRateLimited (as *RateLimitError), ErrConflict (any
// earlier request for the same ordered pair, whatever its status).
func (s *Service) Send(ctx context.Context, actorID, targetID string) (req *store.FriendRequest, err error) {
	defer func() { s.metrics.RecordFriendRequest("send", outcome(err)) }()

	if actorID == targetID {
		return nil, ErrInvalidOperand
	}
	if targetID == "" {
		return nil, fmt.Errorf("%w: to_account_id is required", ErrInvalidArgument)
	}

	req = &store.FriendRequest{
		ID:          uuid.New().String(),
		FromAccount: actorID,
		ToAccount:   targetID,
		Status:      store.RequestStatusPending,
		CreatedAt:   s.now().UTC(),
	}

	err = s.store.CreateFriendRequest(ctx, req, s.limiter.Window)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrSelfRequest):
		return nil, ErrInvalidOperand
	case errors.Is(err, store.ErrAccountNotFound):
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, targetID)
	case errors.Is(err, store.ErrRateLimited):
		return nil, s.rateLimitError(ctx, actorID)
	case errors.Is(err, store.ErrDuplicateRequest):
		return nil, fmt.Errorf("%w: friend request to %s was already sent", ErrConflict, targetID)
	default:
		return nil, fmt.Errorf("sending friend request: %w", err)
	}

	s.logger.Info("friend request sent", "request_id", req.ID, "from", actorID, "to", targetID)
	s.publish(ctx, events.TypeSent, req, req.CreatedAt)
	return req, nil
}

// rateLimitError builds the denial with a best-effort retry hint.
func (s *Service) rateLimitError(ctx context.Context, actorID string) error {
	rle := &RateLimitError{Limit: s.limiter.Window.Limit, Span: s.limiter.Window.Span}
	q, err := s.limiter.Quota(ctx, actorID)
	if err != nil {
		s.logger.Warn("computing retry-after failed", "account_id", actorID, "error", err)
		rle.RetryAfter = s.limiter.Window.Span
		return rle
	}
	rle.RetryAfter = q.RetryAfter
	return rle
}

// Accept marks a pending request addressed to actorID as accepted. This is the
// only path that creates a friendship.
func (s *Service) Accept(ctx context.Context, actorID, requestID string) (*store.FriendRequest, error) {
	req, err := s.respond(ctx, actorID, requestID, store.RequestStatusAccepted)
	s.metrics.RecordFriendRequest("accept", outcome(err))
	return req, err
}

// Reject marks a pending request addressed to actorID as rejected.
func (s *Service) Reject(ctx context.Context, actorID, requestID string) (*store.FriendRequest, error) {
	req, err := s.respond(ctx, actorID, requestID, store.RequestStatusRejected)
	s.metrics.RecordFriendRequest("reject", outcome(err))
	return req, err
}

// respond applies a terminal status. Errors, in order: ErrNotFound,
// ErrForbidden (actor is not the recipient), ErrInvalidState (not pending,
// including losing a race to a concurrent responder).
func (s *Service) respond(ctx context.Context, actorID, requestID string, status store.RequestStatus) (*store.FriendRequest, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request_id is required", ErrInvalidArgument)
	}

	req, err := s.store.RespondFriendRequest(ctx, requestID, actorID, status, s.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, store.ErrRequestNotFound):
		return nil, fmt.Errorf("%w: friend request %s", ErrNotFound, requestID)
	case errors.Is(err, store.ErrNotRecipient):
		return nil, fmt.Errorf("%w: only the recipient may respond", ErrForbidden)
	case errors.Is(err, store.ErrNotPending):
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	default:
		return nil, fmt.Errorf("responding to friend request: %w", err)
	}

	s.logger.Info("friend request answered", "request_id", requestID, "status", status, "by", actorID)

	typ := events.TypeAccepted
	if status == store.RequestStatusRejected {
		typ = events.TypeRejected
	}
	s.publish(ctx, typ, req, *req.RespondedAt)
	return req, nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, req *store.FriendRequest, at time.Time) {
	_ = s.publisher.Publish(ctx, events.Event{
		Type:      typ,
		RequestID: req.ID,
		From:      req.FromAccount,
		To:        req.ToAccount,
		At:        at,
	})
}

// ListPending returns pending requests addressed to actorID, oldest first.
func (s *Service) ListPending(ctx context.Context, actorID string) ([]*store.PendingRequest, error) {
	pending, err := s.store.ListPendingRequests(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	return pending, nil
}

// FriendsOf returns every account with an accepted request to or from accountID.
func (s *Service) FriendsOf(ctx context.Context, accountID string) ([]*store.Account, error) {
	friends, err := s.store.ListFriends(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	return friends, nil
}

// Search finds accounts by email when query contains '@', otherwise by name
// with prefix matches ranked before contains matches. Matching is
// case-insensitive. An empty query fails with ErrInvalidArgument.
func (s *Service) Search(ctx context.Context, query string) ([]*store.Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidArgument)
	}

	var (
		results []*store.Account
		err     error
	)
	if strings.Contains(query, "@") {
		results, err = s.store.SearchAccountsByEmail(ctx, query)
	} else {
		results, err = s.store.SearchAccountsByName(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("searching accounts: %w", err)
	}
	return results, nil
}

// Quota reports how many more requests actorID may send right now.
func (s *Service) Quota(ctx context.Context, actorID string) (ratelimit.Quota, error) {
	return s.limiter.Quota(ctx, actorID)
}

// Account returns the account with the given id.
func (s *Service) Account(ctx context.Context, id string) (*store.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return account, nil
}
