// Package redis provides a Redis implementation of storage.UserStore. Each
// user is one JSON value keyed by username.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/storage"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "identity:user:"

// maxTxRetries bounds optimistic-lock retries in SetPasswordHash.
const maxTxRetries = 10

// Config holds Redis connection settings.
type Config struct {
	// Addrs lists one address for a single node, or several for a cluster.
	Addrs    []string
	Username string
	Password string
	DB       int

	// Prefix defaults to DefaultPrefix.
	Prefix string
}

// record is the stored JSON shape. A null password_hash means no password.
type record struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Claims       auth.Claims       `json:"claims"`
	Roles        auth.Roles        `json:"roles"`
	PasswordHash auth.PasswordHash `json:"password_hash"`
}

func (r *record) user() *storage.StoredUser {
	return &storage.StoredUser{
		ID:           auth.UserID(r.ID),
		Username:     r.Username,
		Claims:       r.Claims,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
	}
}

// Store is a Redis-backed UserStore.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client. An empty prefix means
// DefaultPrefix.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(username string) string {
	return s.prefix + username
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, username string) (*record, error) {
	data, err := c.Get(ctx, s.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &rec, nil
}

// FindByUsername loads a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.StoredUser, error) {
	rec, err := s.load(ctx, s.client, username)
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// AddUser stores the user with SETNX, so exactly one of several concurrent
// adds for a username wins.
func (s *Store) AddUser(ctx context.Context, u storage.StoredUser) (auth.UserID, error) {
	if u.ID == "" {
		u.ID = auth.NewUserID()
	}
	data, err := json.Marshal(record{
		ID:           string(u.ID),
		Username:     u.Username,
		Claims:       u.Claims,
		Roles:        u.Roles,
		PasswordHash: u.PasswordHash,
	})
	if err != nil {
		return "", fmt.Errorf("marshal user: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(u.Username), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return "", storage.ErrUsernameExists
	}
	return u.ID, nil
}

// PasswordHash returns the user's hash.
func (s *Store) PasswordHash(ctx context.Context, username string) (auth.PasswordHash, error) {
	rec, err := s.load(ctx, s.client, username)
	if err != nil {
		return nil, err
	}
	return rec.PasswordHash, nil
}

// SetPasswordHash rewrites the user's record under WATCH so a concurrent
// writer cannot be overwritten with stale data.
func (s *Store) SetPasswordHash(ctx context.Context, username string, hash auth.PasswordHash) error {
	key := s.key(username)

	update := func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, username)
		if err != nil {
			return err
		}
		rec.PasswordHash = hash
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("updating password hash for %q: too much contention", username)
}

// HealthCheck pings Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
