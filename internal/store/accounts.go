// ABOUTME: Account persistence and lookup for the account store
// ABOUTME: Covers creation with unique emails, id/email lookup and substring search

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Ensure SQLiteStore implements AccountStore.
var _ AccountStore = (*SQLiteStore)(nil)

// CreateAccount inserts a new account.
// Returns ErrEmailExists if the email is already registered (case-insensitive).
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.PasswordHash,
		formatTime(account.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	s.logger.Info("created account", "id", account.ID)
	return nil
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM accounts
		WHERE id = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetAccountByEmail retrieves an account by email, ignoring case.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM accounts
		WHERE email = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var createdAtStr string

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	account.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &account, nil
}

// SearchAccountsByEmail returns accounts whose email contains fragment, ignoring case.
// Results are ordered by id.
func (s *SQLiteStore) SearchAccountsByEmail(ctx context.Context, fragment string) ([]*Account, error) {
	query := `
		SELECT id, email, name, created_at
		FROM accounts
		WHERE instr(lower(email), lower(?)) > 0
		ORDER BY id
	`
	return s.queryAccounts(ctx, query, fragment)
}

// SearchAccountsByName returns accounts whose name contains fragment, ignoring case.
// Names starting with fragment come first; each tier is ordered by id.
func (s *SQLiteStore) SearchAccountsByName(ctx context.Context, fragment string) ([]*Account, error) {
	query := `
		SELECT id, email, name, created_at
		FROM accounts
		WHERE instr(lower(name), lower(?)) > 0
		ORDER BY CASE WHEN instr(lower(name), lower(?)) = 1 THEN 0 ELSE 1 END, id
	`
	return s.queryAccounts(ctx, query, fragment, fragment)
}

// queryAccounts runs a query selecting (id, email, name, created_at) rows.
func (s *SQLiteStore) queryAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		var account Account
		var createdAtStr string

		if err := rows.Scan(&account.ID, &account.Email, &account.Name, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}

		account.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}
