// Package memory provides an in-memory implementation of storage.UserStore
// for testing and lightweight deployments. Users are lost when the process
// restarts.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/storage"
)

// Store is an in-memory UserStore. Lookups share a read lock; AddUser and
// SetPasswordHash take the write lock.
type Store struct {
	mu    sync.RWMutex
	users map[string]*storage.StoredUser
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{users: make(map[string]*storage.StoredUser)}
}

// FindByUsername returns a copy of the stored user.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.StoredUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return u.Clone(), nil
}

// AddUser inserts u. The duplicate check and the insert happen under one
// write lock.
func (s *Store) AddUser(ctx context.Context, u storage.StoredUser) (auth.UserID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.ID == "" {
		u.ID = auth.NewUserID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return "", storage.ErrUsernameExists
	}
	s.users[u.Username] = u.Clone()
	return u.ID, nil
}

// PasswordHash returns a copy of the user's hash.
func (s *Store) PasswordHash(ctx context.Context, username string) (auth.PasswordHash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	if u.PasswordHash == nil {
		return nil, nil
	}
	return append(auth.PasswordHash{}, u.PasswordHash...), nil
}

// SetPasswordHash replaces the user's hash. A nil hash removes the password.
func (s *Store) SetPasswordHash(ctx context.Context, username string, hash auth.PasswordHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return storage.ErrUserNotFound
	}
	if hash == nil {
		u.PasswordHash = nil
	} else {
		u.PasswordHash = append(auth.PasswordHash{}, hash...)
	}
	return nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
