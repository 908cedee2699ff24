// ABOUTME: Friend request ledger persistence and the friendship projection
// ABOUTME: Guarded insert, conditional status transitions, pending and friends queries

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ensure SQLiteStore implements LedgerStore.
var _ LedgerStore = (*SQLiteStore)(nil)

// CreateFriendRequest inserts req as a pending request.
//
// Checks run in order inside one immediate (write-locked) transaction:
//   - ErrSelfRequest if sender and recipient are the same
//   - ErrAccountNotFound if the recipient does not exist
//   - ErrRateLimited if policy rejects the sender's recent request count
//   - ErrDuplicateRequest if any request for (from, to) already exists
//
// req.CreatedAt is the moment of the send and anchors the policy window.
// A nil policy admits every send.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, req *FriendRequest, policy SendPolicy) error {
	if req.FromAccount == req.ToAccount {
		return ErrSelfRequest
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, req.ToAccount).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("checking recipient: %w", err)
	}

	if policy != nil {
		var recent int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM friend_requests
			WHERE from_account = ? AND created_at >= ? AND created_at <= ?
		`, req.FromAccount, formatTime(policy.Start(req.CreatedAt)), formatTime(req.CreatedAt)).Scan(&recent)
		if err != nil {
			return fmt.Errorf("counting recent requests: %w", err)
		}
		if !policy.Admit(recent) {
			return ErrRateLimited
		}
	}

	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM friend_requests WHERE from_account = ? AND to_account = ?
	`, req.FromAccount, req.ToAccount).Scan(&exists)
	if err == nil {
		return ErrDuplicateRequest
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking existing request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO friend_requests (id, from_account, to_account, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, req.ID, req.FromAccount, req.ToAccount, string(RequestStatusPending), formatTime(req.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("inserting friend request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing friend request: %w", err)
	}

	req.Status = RequestStatusPending
	req.RespondedAt = nil

	s.logger.Debug("created friend request", "id", req.ID, "from", req.FromAccount, "to", req.ToAccount)
	return nil
}

// GetFriendRequest retrieves a friend request by ID.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, id string) (*FriendRequest, error) {
	query := `
		SELECT id, from_account, to_account, status, created_at, responded_at
		FROM friend_requests
		WHERE id = ?
	`

	var req FriendRequest
	var status, createdAtStr string
	var respondedAt sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.FromAccount,
		&req.ToAccount,
		&status,
		&createdAtStr,
		&respondedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying friend request: %w", err)
	}

	req.Status = RequestStatus(status)
	req.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if respondedAt.Valid {
		t, err := parseTime(respondedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing responded_at: %w", err)
		}
		req.RespondedAt = &t
	}

	return &req, nil
}

// RespondFriendRequest moves a pending request to status (accepted or rejected).
//
// The transition is one UPDATE guarded by (id, recipient, status = pending), so
// of two concurrent responders exactly one wins. When nothing was updated the
// row is re-read to report why: ErrRequestNotFound, ErrNotRecipient, or
// ErrNotPending.
func (s *SQLiteStore) RespondFriendRequest(ctx context.Context, id, recipientID string, status RequestStatus, at time.Time) (*FriendRequest, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("invalid target status %q", status)
	}

	query := `
		UPDATE friend_requests
		SET status = ?, responded_at = ?
		WHERE id = ? AND to_account = ? AND status = 'pending'
		RETURNING from_account, created_at
	`

	respondedAt := at.UTC()
	req := FriendRequest{
		ID:          id,
		ToAccount:   recipientID,
		Status:      status,
		RespondedAt: &respondedAt,
	}
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, string(status), formatTime(respondedAt), id, recipientID).
		Scan(&req.FromAccount, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.explainFailedTransition(ctx, id, recipientID)
	}
	if err != nil {
		return nil, fmt.Errorf("updating friend request: %w", err)
	}

	req.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	s.logger.Debug("responded to friend request", "id", id, "status", status)
	return &req, nil
}

// explainFailedTransition reports why a guarded update matched no row.
func (s *SQLiteStore) explainFailedTransition(ctx context.Context, id, recipientID string) error {
	current, err := s.GetFriendRequest(ctx, id)
	if err != nil {
		return err
	}
	if current.ToAccount != recipientID {
		return ErrNotRecipient
	}
	return fmt.Errorf("%w: status is %s", ErrNotPending, current.Status)
}

// ListPendingRequests returns pending requests addressed to recipientID, oldest first.
func (s *SQLiteStore) ListPendingRequests(ctx context.Context, recipientID string) ([]*PendingRequest, error) {
	query := `
		SELECT r.id, r.from_account, r.to_account, r.status, r.created_at, a.email, a.name
		FROM friend_requests r
		JOIN accounts a ON a.id = r.from_account
		WHERE r.to_account = ? AND r.status = 'pending'
		ORDER BY r.created_at ASC, r.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("querying pending requests: %w", err)
	}
	defer rows.Close()

	pending := []*PendingRequest{}
	for rows.Next() {
		var p PendingRequest
		var status, createdAtStr string

		if err := rows.Scan(&p.ID, &p.FromAccount, &p.ToAccount, &status, &createdAtStr, &p.FromEmail, &p.FromName); err != nil {
			return nil, fmt.Errorf("scanning pending request row: %w", err)
		}

		p.Status = RequestStatus(status)
		p.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		pending = append(pending, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending request rows: %w", err)
	}

	return pending, nil
}

// ListSentSince returns creation times of requests sent by senderID at or after
// since, oldest first.
func (s *SQLiteStore) ListSentSince(ctx context.Context, senderID string, since time.Time) ([]time.Time, error) {
	query := `
		SELECT created_at
		FROM friend_requests
		WHERE from_account = ? AND created_at >= ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, senderID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying sent requests: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var createdAtStr string
		if err := rows.Scan(&createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning sent request row: %w", err)
		}
		t, err := parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		times = append(times, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sent request rows: %w", err)
	}

	return times, nil
}

// ListFriends returns every account joined to accountID by an accepted request
// in either direction, ordered by id. It is a single statement, so the result
// is one consistent snapshot of the ledger.
func (s *SQLiteStore) ListFriends(ctx context.Context, accountID string) ([]*Account, error) {
	query := `
		SELECT id, email, name, created_at
		FROM accounts
		WHERE id IN (
			SELECT to_account FROM friend_requests
			WHERE from_account = ? AND status = 'accepted'
			UNION
			SELECT from_account FROM friend_requests
			WHERE to_account = ? AND status = 'accepted'
		)
		ORDER BY id
	`
	return s.queryAccounts(ctx, query, accountID, accountID)
}
