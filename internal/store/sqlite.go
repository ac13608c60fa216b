package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/facturai/facturai/internal/domain"
	"github.com/facturai/facturai/internal/shared"
	_ "modernc.org/sqlite"
)

// ErrDuplicatePhone is returned when creating a user with a phone
// number that already belongs to another user.
var ErrDuplicatePhone = errors.New("phone number already registered")

// Retry parameters for writes hitting SQLITE_BUSY under WAL contention.
const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// execWithRetry runs a write, retrying with exponential backoff while
// SQLite reports the database busy or locked.
func execWithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || ctx.Err() != nil {
			return err
		}
		if i < writeMaxRetries-1 {
			delay := writeRetryBaseDelay * time.Duration(1<<i)
			slog.Debug("Database locked, retrying write",
				"op", op, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone_number TEXT NOT NULL UNIQUE,
		user_token TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone_number);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_key TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_activity_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_activity ON sessions(user_id, last_activity_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUserByPhone retrieves a user by phone number. The phone number is
// compared as an opaque string, exactly as stored.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `
		SELECT id, name, email, phone_number, user_token, created_at, updated_at
		FROM users WHERE phone_number = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, phone))
}

// GetUserByID retrieves a user by their internal ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, name, email, phone_number, user_token, created_at, updated_at
		FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var userToken sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PhoneNumber,
		&userToken, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.UserToken = userToken.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// CreateUser persists a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, name, email, phone_number, user_token, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var userToken interface{}
	if user.UserToken != "" {
		userToken = user.UserToken
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PhoneNumber,
		userToken, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		if shared.IsSQLiteConstraintError(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ListUsers returns all registered users ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, name, email, phone_number, user_token, created_at, updated_at
		FROM users ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		var user domain.User
		var userToken sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&user.ID, &user.Name, &user.Email, &user.PhoneNumber,
			&userToken, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}

		user.UserToken = userToken.String
		user.CreatedAt = time.Unix(createdAt, 0)
		user.UpdatedAt = time.Unix(updatedAt, 0)
		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// LatestSession returns the most recent session for the user, ordered
// by last_activity_at descending then created_at descending, so that
// when two sessions share an activity timestamp the most recently
// created one wins.
func (s *SQLiteStore) LatestSession(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, session_key, created_at, last_activity_at
		FROM sessions WHERE user_id = ?
		ORDER BY last_activity_at DESC, created_at DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID)

	var session domain.Session
	var createdAt, lastActivityAt int64

	err := row.Scan(
		&session.ID, &session.UserID, &session.SessionKey,
		&createdAt, &lastActivityAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastActivityAt = time.Unix(lastActivityAt, 0)

	return &session, nil
}

// CreateSession durably persists a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (id, user_id, session_key, created_at, last_activity_at)
	VALUES (?, ?, ?, ?, ?)`

	err := execWithRetry(ctx, "insert session", func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			session.ID, session.UserID, session.SessionKey,
			session.CreatedAt.Unix(), session.LastActivityAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// TouchSession updates last_activity_at for the given session id.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE sessions SET last_activity_at = ? WHERE id = ?`
	var result sql.Result
	err := execWithRetry(ctx, "touch session", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, at.Unix(), sessionID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update last_activity_at: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchSession affected 0 rows", "session_id", sessionID)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
