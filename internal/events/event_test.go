// ABOUTME: Tests for event publishers other than the broadcaster
// ABOUTME: Covers NATS subjects and payloads, Multi fan-out and best-effort logging

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records published messages.
type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

// recordingPublisher remembers events and optionally fails.
type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestNATSPublisher_Subjects(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "", nil)

	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for _, typ := range []Type{TypeSent, TypeAccepted, TypeRejected} {
		require.NoError(t, p.Publish(context.Background(), Event{Type: typ, RequestID: "req-1", From: "alice", To: "bob", At: at}))
	}

	assert.Equal(t, []string{
		"friends.request.sent",
		"friends.request.accepted",
		"friends.request.rejected",
	}, conn.subjects)

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "req-1", decoded.RequestID)
	assert.Equal(t, "alice", decoded.From)
	assert.Equal(t, "bob", decoded.To)
	assert.True(t, decoded.At.Equal(at))
	assert.Contains(t, string(conn.payloads[0]), `"type":"friend_request.sent"`)
}

func TestNATSPublisher_CustomPrefix(t *testing.T) {
	p := newNATSPublisher(&fakeConn{}, "social.friends.", nil)
	assert.Equal(t, "social.friends.accepted", p.Subject(TypeAccepted))
}

func TestNATSPublisher_Errors(t *testing.T) {
	p := newNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "", nil)

	err := p.Publish(context.Background(), Event{Type: TypeSent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "friends.request.sent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{Type: TypeSent}), context.Canceled)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	first := &recordingPublisher{err: errors.New("first failed")}
	second := &recordingPublisher{}

	err := Multi{first, second}.Publish(context.Background(), Event{Type: TypeSent, RequestID: "req-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1, "a failing publisher must not stop the rest")

	assert.NoError(t, Multi{}.Publish(context.Background(), Event{}))
}

func TestBestEffort_LogsAndSwallows(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	be := BestEffort{Publisher: &recordingPublisher{err: errors.New("boom")}, Logger: logger}
	assert.NoError(t, be.Publish(context.Background(), Event{Type: TypeRejected, RequestID: "req-9"}))
	assert.Contains(t, buf.String(), "event publish failed")
	assert.Contains(t, buf.String(), "req-9")

	assert.NoError(t, BestEffort{}.Publish(context.Background(), Event{}))
	assert.NoError(t, Noop{}.Publish(context.Background(), Event{}))
}

func TestEvent_Parties(t *testing.T) {
	e := Event{From: "alice", To: "bob"}
	assert.Equal(t, [2]string{"alice", "bob"}, e.Parties())
}
