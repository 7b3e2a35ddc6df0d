// Package storage defines the persistence contract for user records.
//
// Backends live in subpackages (memory, postgres, sqlite, redis). The
// contract is deliberately small: the user repository only needs to look
// users up, add them atomically with respect to duplicate usernames, and
// read or replace password hashes.
package storage

import (
	"context"
	"errors"

	"github.com/rhuss/identity/pkg/auth"
)

// Sentinel errors for storage operations.
var (
	// ErrUserNotFound is returned when no user has the given username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameExists is returned by AddUser when the username is taken.
	ErrUsernameExists = errors.New("username already exists")
)

// StoredUser is the persisted form of a user. A nil PasswordHash means the
// account has no password and cannot log in with one.
type StoredUser struct {
	ID           auth.UserID
	Username     string
	Claims       auth.Claims
	Roles        auth.Roles
	PasswordHash auth.PasswordHash
}

// Data returns the user's identity fields.
func (u *StoredUser) Data() auth.UserData {
	return auth.UserData{
		ID:       u.ID,
		Username: u.Username,
		Claims:   u.Claims.Clone(),
		Roles:    u.Roles.Clone(),
	}
}

// Clone returns a deep copy of u.
func (u *StoredUser) Clone() *StoredUser {
	c := &StoredUser{
		ID:       u.ID,
		Username: u.Username,
		Claims:   u.Claims.Clone(),
		Roles:    u.Roles.Clone(),
	}
	if u.PasswordHash != nil {
		c.PasswordHash = append(auth.PasswordHash{}, u.PasswordHash...)
	}
	return c
}

// UserStore persists users.
//
// AddUser must be atomic with respect to duplicate detection: of two
// concurrent calls for the same username exactly one succeeds and the other
// returns ErrUsernameExists. A failed or cancelled AddUser leaves no record.
type UserStore interface {
	// FindByUsername returns the user or ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*StoredUser, error)

	// AddUser persists u and returns its ID. An empty u.ID is replaced by a
	// freshly generated one.
	AddUser(ctx context.Context, u StoredUser) (auth.UserID, error)

	// PasswordHash returns the user's hash, nil if none is set, or
	// ErrUserNotFound.
	PasswordHash(ctx context.Context, username string) (auth.PasswordHash, error)

	// SetPasswordHash replaces the user's hash or returns ErrUserNotFound.
	SetPasswordHash(ctx context.Context, username string, hash auth.PasswordHash) error
}

// HealthChecker is implemented by stores backed by an external service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
