// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Opens the database, applies pragmas and creates the schema on startup

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// busyTimeout is how long a connection waits for the write lock.
const busyTimeout = 5 * time.Second

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver creates a SQLite store using the named driver.
// An empty driver selects DriverModernc.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver == "" {
		driver = DriverModernc
	}

	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// buildDSN renders the connection string for the driver. Pragmas go in the DSN
// rather than through Exec so that every pooled connection gets them, and
// _txlock=immediate makes BeginTx take the write lock up front.
func buildDSN(driver, path string) (string, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")

	switch driver {
	case DriverModernc:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
		params.Add("_pragma", "foreign_keys(1)")
		params.Add("_pragma", "journal_mode(WAL)")
	case DriverCGO:
		params.Set("_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds()))
		params.Set("_foreign_keys", "on")
		params.Set("_journal_mode", "WAL")
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}

	return "file:" + path + "?" + params.Encode(), nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS friend_requests (
			id           TEXT PRIMARY KEY,
			from_account TEXT NOT NULL REFERENCES accounts(id),
			to_account   TEXT NOT NULL REFERENCES accounts(id),
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TEXT NOT NULL,
			responded_at TEXT,

			UNIQUE (from_account, to_account),
			CHECK (from_account <> to_account),
			CHECK (status IN ('pending', 'accepted', 'rejected'))
		);

		CREATE INDEX IF NOT EXISTS idx_friend_requests_sender_created
			ON friend_requests(from_account, created_at);
		CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient_status
			ON friend_requests(to_account, status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
