// Package sqlite provides a SQLite implementation of storage.UserStore
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    claims        TEXT NOT NULL DEFAULT '{}',
    roles         TEXT NOT NULL DEFAULT '[]',
    password_hash BLOB,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Config holds SQLite settings.
type Config struct {
	// Path is the database file. ":memory:" keeps the database in memory
	// for the lifetime of the store.
	Path string
}

// Store is a SQLite-backed UserStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New opens the database and creates the schema if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite has a single writer, and every :memory: connection is its
	// own database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// FindByUsername loads a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.StoredUser, error) {
	var (
		u                     storage.StoredUser
		id                    string
		claimsJSON, rolesJSON string
		hash                  []byte
		noHash                bool
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, claims, roles, password_hash, password_hash IS NULL FROM users WHERE username = ?`,
		username,
	).Scan(&id, &u.Username, &claimsJSON, &rolesJSON, &hash, &noHash)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.ID = auth.UserID(id)
	u.PasswordHash = scanHash(hash, noHash)
	if err := json.Unmarshal([]byte(claimsJSON), &u.Claims); err != nil {
		return nil, fmt.Errorf("unmarshaling claims: %w", err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return nil, fmt.Errorf("unmarshaling roles: %w", err)
	}

	return &u, nil
}

// AddUser inserts a user. The UNIQUE constraint on username rejects
// duplicates atomically.
func (s *Store) AddUser(ctx context.Context, u storage.StoredUser) (auth.UserID, error) {
	if u.ID == "" {
		u.ID = auth.NewUserID()
	}

	claimsJSON, err := json.Marshal(u.Claims)
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}
	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return "", fmt.Errorf("marshaling roles: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, claims, roles, password_hash) VALUES (?, ?, ?, ?, ?)`,
		string(u.ID), u.Username, string(claimsJSON), string(rolesJSON), blob(u.PasswordHash),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrUsernameExists
		}
		return "", fmt.Errorf("inserting user: %w", err)
	}

	return u.ID, nil
}

// PasswordHash returns the user's hash, nil when the column is NULL.
func (s *Store) PasswordHash(ctx context.Context, username string) (auth.PasswordHash, error) {
	var (
		hash   []byte
		noHash bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, password_hash IS NULL FROM users WHERE username = ?`,
		username,
	).Scan(&hash, &noHash)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying password hash: %w", err)
	}
	return scanHash(hash, noHash), nil
}

// SetPasswordHash replaces the user's hash. A nil hash stores NULL.
func (s *Store) SetPasswordHash(ctx context.Context, username string, hash auth.PasswordHash) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`,
		blob(hash), username,
	)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// blob maps a nil hash to NULL. An empty hash is stored as an empty blob.
func blob(h auth.PasswordHash) any {
	if h == nil {
		return nil
	}
	return []byte(h)
}

// scanHash restores the NULL/empty distinction the driver loses: a
// zero-length blob scans as nil.
func scanHash(b []byte, null bool) auth.PasswordHash {
	if null {
		return nil
	}
	if b == nil {
		return auth.PasswordHash{}
	}
	return auth.PasswordHash(b)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
