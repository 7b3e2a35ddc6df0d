// Package postgres provides a PostgreSQL implementation of storage.UserStore.
// It uses pgx/v5 for connection pooling and JSONB for claim storage.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/storage"
)

// Store is a PostgreSQL-backed UserStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		version, err := s.SchemaVersion(ctx)
		if err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("postgres schema ready", "version", version)
	}

	return s, nil
}

// FindByUsername loads a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.StoredUser, error) {
	var (
		u          storage.StoredUser
		id         string
		claimsJSON []byte
		roles      []string
		hash       []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, claims, roles, password_hash
		FROM users
		WHERE username = $1
	`, username).Scan(&id, &u.Username, &claimsJSON, &roles, &hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.ID = auth.UserID(id)
	u.Roles = auth.NewRoles(roles...)
	if hash != nil {
		u.PasswordHash = auth.PasswordHash(hash)
	}
	if err := json.Unmarshal(claimsJSON, &u.Claims); err != nil {
		return nil, fmt.Errorf("unmarshaling claims: %w", err)
	}

	return &u, nil
}

// AddUser inserts a user. The unique constraint on username makes the
// insert atomic with respect to duplicates.
func (s *Store) AddUser(ctx context.Context, u storage.StoredUser) (auth.UserID, error) {
	if u.ID == "" {
		u.ID = auth.NewUserID()
	}

	claimsJSON, err := json.Marshal(u.Claims)
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, claims, roles, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`,
		string(u.ID), u.Username, claimsJSON, u.Roles.Values(), nullBytes(u.PasswordHash),
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
	var hash []byte
	err := s.pool.QueryRow(ctx,
		"SELECT password_hash FROM users WHERE username = $1",
		username,
	).Scan(&hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying password hash: %w", err)
	}
	if hash == nil {
		return nil, nil
	}
	return auth.PasswordHash(hash), nil
}

// SetPasswordHash replaces the user's hash. A nil hash stores NULL.
func (s *Store) SetPasswordHash(ctx context.Context, username string, hash auth.PasswordHash) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE users SET password_hash = $1, updated_at = now() WHERE username = $2",
		nullBytes(hash), username,
	)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullBytes maps a nil hash to SQL NULL and keeps an empty one as ''.
func nullBytes(b auth.PasswordHash) *[]byte {
	if b == nil {
		return nil
	}
	raw := []byte(b)
	return &raw
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
