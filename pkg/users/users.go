// Package users combines a storage.UserStore and a hasher.Hasher into the
// user-facing operations: password login, registration, lookup and password
// change. It is the only place that turns stored or decoded user data into
// an auth.Principal.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/debug"
	"github.com/rhuss/identity/pkg/hasher"
	"github.com/rhuss/identity/pkg/storage"
)

// Login and registration errors.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrMissingPassword   = errors.New("user has no password set")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrUsernameExists    = errors.New("username already exists")
)

// Repository orchestrates a store and a hasher. It is safe for concurrent
// use if both collaborators are.
type Repository struct {
	store  storage.UserStore
	hasher hasher.Hasher
}

// New creates a Repository.
func New(store storage.UserStore, h hasher.Hasher) *Repository {
	return &Repository{store: store, hasher: h}
}

// Authenticate verifies username and password and returns the principal.
//
// It returns ErrUserNotFound, ErrMissingPassword or ErrIncorrectPassword for
// rejected logins. Any other error is an internal failure with its cause
// wrapped.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (*auth.Principal, error) {
	stored, err := r.store.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	hash, err := r.store.PasswordHash(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading password hash: %w", err)
	}
	if hash == nil {
		return nil, ErrMissingPassword
	}

	data := stored.Data()
	ok, err := r.hasher.VerifyPassword(ctx, data, hash, password)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrIncorrectPassword
	}

	return r.PrincipalFromData(data)
}

// AddUser registers a user. A nil password creates an account that cannot
// log in with a password. The store either persists the whole record or
// nothing.
func (r *Repository) AddUser(ctx context.Context, data auth.UserData, password *string) (auth.UserID, error) {
	if data.Username == "" {
		return "", auth.ErrEmptyUsername
	}

	u := storage.StoredUser{
		ID:       data.ID,
		Username: data.Username,
		Claims:   data.Claims.Clone(),
		Roles:    data.Roles.Clone(),
	}
	if password != nil {
		hash, err := r.hasher.HashPassword(ctx, data, *password)
		if err != nil {
			return "", fmt.Errorf("hashing password: %w", err)
		}
		u.PasswordHash = hash
	}

	id, err := r.store.AddUser(ctx, u)
	if errors.Is(err, storage.ErrUsernameExists) {
		return "", ErrUsernameExists
	}
	if err != nil {
		return "", fmt.Errorf("storing user: %w", err)
	}
	debug.Log("storage", "user stored", "username", data.Username, "id", id.String(), "password", password != nil)
	return id, nil
}

// FindByUsername re-hydrates a principal without checking a password. It
// is meant for schemes whose credential already proves the identity.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	stored, err := r.store.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return r.PrincipalFromData(stored.Data())
}

// ChangePassword replaces the user's password hash. A nil password removes
// it.
func (r *Repository) ChangePassword(ctx context.Context, username string, password *string) error {
	stored, err := r.store.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	var hash auth.PasswordHash
	if password != nil {
		hash, err = r.hasher.HashPassword(ctx, stored.Data(), *password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
	}

	err = r.store.SetPasswordHash(ctx, username, hash)
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}
	return nil
}

// PrincipalFromData builds a principal from verified data, such as the
// claims of a validated token.
func (r *Repository) PrincipalFromData(data auth.UserData) (*auth.Principal, error) {
	return auth.NewPrincipal(data)
}

// AuthError translates a repository error into the scheme-level error.
// Rejected logins become Unauthenticated; everything else is Other with the
// cause kept for logging.
func AuthError(err error) *auth.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrMissingPassword),
		errors.Is(err, ErrIncorrectPassword):
		return &auth.Error{Kind: auth.KindUnauthenticated, Cause: err}
	}
	return auth.Other(err)
}
