// ABOUTME: Tests for the friend graph service against a real SQLite store
// ABOUTME: Covers the request state machine, rate limiting, friendship, search and events

package social

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/friendgraph/internal/events"
	"github.com/2389/friendgraph/internal/metrics"
	"github.com/2389/friendgraph/internal/ratelimit"
	"github.com/2389/friendgraph/internal/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recordingPublisher) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.got...)
}

// untouchableStore fails the test if any storage method is reached.
type untouchableStore struct {
	Store
}

type testEnv struct {
	svc       *Service
	store     *store.SQLiteStore
	clock     *fakeClock
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := createTestStore(t)
	clock := newFakeClock()
	pub := &recordingPublisher{}
	m := metrics.New()

	svc := New(st, Options{
		Window:    ratelimit.Default(),
		Publisher: pub,
		Metrics:   m,
		Now:       clock.Now,
	})
	return &testEnv{svc: svc, store: st, clock: clock, publisher: pub, metrics: m}
}

func (e *testEnv) account(t *testing.T, id, email, name string) {
	t.Helper()
	require.NoError(t, e.store.CreateAccount(context.Background(), &store.Account{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    e.clock.Now(),
	}))
}

func (e *testEnv) accounts(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		e.account(t, id, id+"@example.com", id)
	}
}

func accountIDs(accounts []*store.Account) []string {
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestSend_OnceThenConflict(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	req, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, store.RequestStatusPending, req.Status)
	assert.True(t, req.CreatedAt.Equal(env.clock.Now()))

	_, err = env.svc.Send(ctx, "alice", "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSend_SelfNeverReachesStore(t *testing.T) {
	svc := New(untouchableStore{}, Options{})

	_, err := svc.Send(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, ErrInvalidOperand)
}

func TestSend_UnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice")

	_, err := env.svc.Send(context.Background(), "alice", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Send(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSend_RateLimitSlides(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "b1", "b2", "b3", "b4")
	ctx := context.Background()

	for _, target := range []string{"b1", "b2", "b3"} {
		_, err := env.svc.Send(ctx, "alice", target)
		require.NoError(t, err)
		env.clock.Advance(10 * time.Second)
	}

	// Now 30s after the first send.
	_, err := env.svc.Send(ctx, "alice", "b4")
	require.ErrorIs(t, err, ErrRateLimited)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 3, rle.Limit)
	assert.Equal(t, time.Minute, rle.Span)
	assert.InDelta(t, (30 * time.Second).Seconds(), rle.RetryAfter.Seconds(), 0.001)

	// Exactly 60s after the first send it still counts.
	env.clock.Advance(30 * time.Second)
	_, err = env.svc.Send(ctx, "alice", "b4")
	require.ErrorIs(t, err, ErrRateLimited)

	env.clock.Advance(time.Millisecond)
	_, err = env.svc.Send(ctx, "alice", "b4")
	assert.NoError(t, err, "oldest send aged out of the window")
}

func TestSend_RateLimitCheckedBeforeConflict(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "b1", "b2", "b3")
	ctx := context.Background()

	for _, target := range []string{"b1", "b2", "b3"} {
		_, err := env.svc.Send(ctx, "alice", target)
		require.NoError(t, err)
	}

	_, err := env.svc.Send(ctx, "alice", "b1")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSend_RejectedRequestStillBlocksResend(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	req, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = env.svc.Reject(ctx, "bob", req.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	_, err = env.svc.Send(ctx, "alice", "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSend_CounterRequestIsDistinct(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	first, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	counter, err := env.svc.Send(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, counter.ID)

	friends, err := env.svc.FriendsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, friends, "a counter-request does not create a friendship")
}

func TestAccept_CreatesFriendship(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	req, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	friends, err := env.svc.FriendsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, friends)

	env.clock.Advance(time.Second)
	accepted, err := env.svc.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.RespondedAt)
	assert.True(t, accepted.RespondedAt.Equal(env.clock.Now()))

	friends, err = env.svc.FriendsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, accountIDs(friends))

	friends, err = env.svc.FriendsOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, accountIDs(friends))
}

func TestRespond_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob", "carol")
	ctx := context.Background()

	req, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, "bob", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Accept(ctx, "bob", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.Accept(ctx, "carol", req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Accept(ctx, "alice", req.ID)
	assert.ErrorIs(t, err, ErrForbidden, "the sender cannot accept its own request")

	_, err = env.svc.Reject(ctx, "bob", req.ID)
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "rejected")

	_, err = env.svc.Reject(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.svc.Accept(ctx, "carol", req.ID)
	assert.ErrorIs(t, err, ErrForbidden, "authorization is checked before state")
}

func TestAccept_ConcurrentExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	req, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = env.svc.Accept(ctx, "bob", req.ID)
			} else {
				_, errs[i] = env.svc.Reject(ctx, "bob", req.ID)
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, wins)
}

func TestListPending_OnlyRecipientOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	first, err := env.svc.Send(ctx, "carol", "bob")
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	second, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	answered, err := env.svc.Send(ctx, "dave", "bob")
	require.NoError(t, err)
	_, err = env.svc.Send(ctx, "bob", "alice")
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, "bob", answered.ID)
	require.NoError(t, err)

	pending, err := env.svc.ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, "carol@example.com", pending[0].FromEmail)
	assert.Equal(t, second.ID, pending[1].ID)
	for _, p := range pending {
		assert.Equal(t, "bob", p.ToAccount)
		assert.Equal(t, store.RequestStatusPending, p.Status)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.account(t, "1", "susan@example.com", "Susan")
	env.account(t, "2", "andrew@example.com", "Andrew")
	env.account(t, "3", "zed@example.com", "Zed")
	env.account(t, "4", "anna@example.com", "Anna")
	env.account(t, "5", "joann@example.com", "Jo")
	env.account(t, "6", "ann@example.com", "Ann")

	byName, err := env.svc.Search(ctx, "An")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4", "6", "1"}, accountIDs(byName))

	byEmail, err := env.svc.Search(ctx, "ann@")
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, accountIDs(byEmail))

	_, err = env.svc.Search(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.Search(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQuota(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "b1", "b2")
	ctx := context.Background()

	q, err := env.svc.Quota(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Quota{Limit: 3, Remaining: 3}, q)

	_, err = env.svc.Send(ctx, "alice", "b1")
	require.NoError(t, err)
	_, err = env.svc.Send(ctx, "alice", "b2")
	require.NoError(t, err)

	q, err = env.svc.Quota(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Remaining)
	assert.Zero(t, q.RetryAfter)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob", "carol")
	ctx := context.Background()

	r1, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	r2, err := env.svc.Send(ctx, "carol", "bob")
	require.NoError(t, err)
	_, err = env.svc.Accept(ctx, "bob", r1.ID)
	require.NoError(t, err)
	_, err = env.svc.Reject(ctx, "bob", r2.ID)
	require.NoError(t, err)

	// Failures publish nothing.
	_, err = env.svc.Send(ctx, "alice", "bob")
	require.Error(t, err)
	_, err = env.svc.Accept(ctx, "bob", r1.ID)
	require.Error(t, err)

	got := env.publisher.Events()
	require.Len(t, got, 4)
	assert.Equal(t, events.TypeSent, got[0].Type)
	assert.Equal(t, events.TypeSent, got[1].Type)
	assert.Equal(t, events.Event{Type: events.TypeAccepted, RequestID: r1.ID, From: "alice", To: "bob", At: got[2].At}, got[2])
	assert.Equal(t, events.TypeRejected, got[3].Type)
	assert.Equal(t, r2.ID, got[3].RequestID)
}

// failingPublisher always errors.
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	st := createTestStore(t)
	svc := New(st, Options{Publisher: failingPublisher{}})
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, st.CreateAccount(ctx, &store.Account{ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: time.Now()}))
	}

	req, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice", "bob")
	ctx := context.Background()

	_, err := env.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, _ = env.svc.Send(ctx, "alice", "bob")
	_, _ = env.svc.Send(ctx, "alice", "alice")

	expected := `
# HELP friendgraph_friend_requests_total Friend request operations by outcome.
# TYPE friendgraph_friend_requests_total counter
friendgraph_friend_requests_total{op="send",outcome="conflict"} 1
friendgraph_friend_requests_total{op="send",outcome="invalid_operand"} 1
friendgraph_friend_requests_total{op="send",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(env.metrics.Registry, strings.NewReader(expected), "friendgraph_friend_requests_total"))
}

func TestAccount(t *testing.T) {
	env := newTestEnv(t)
	env.accounts(t, "alice")

	got, err := env.svc.Account(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = env.svc.Account(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "rate_limited", outcome(&RateLimitError{}))
	assert.Equal(t, "invalid_state", outcome(errors.Join(ErrInvalidState)))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}
