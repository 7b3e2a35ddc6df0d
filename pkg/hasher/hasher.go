// Package hasher provides pluggable password hashing.
//
// Every Hasher receives the user the password belongs to, so that
// implementations may derive a per-user salt without a separate salt column.
// A PasswordHash must only be verified by the implementation that produced it.
package hasher

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/rhuss/identity/pkg/auth"
)

// ErrMalformedHash describes a stored hash that cannot be decoded by a
// self-describing hasher. Verification logs it and reports a mismatch.
var ErrMalformedHash = errors.New("malformed password hash")

// Hasher hashes and verifies passwords.
type Hasher interface {
	// Name identifies the hasher in config, logs and metrics.
	Name() string

	// HashPassword derives a hash for password.
	HashPassword(ctx context.Context, user auth.UserData, password string) (auth.PasswordHash, error)

	// VerifyPassword reports whether password matches hash. A mismatch is
	// (false, nil); errors are reserved for internal failures.
	VerifyPassword(ctx context.Context, user auth.UserData, hash auth.PasswordHash, password string) (bool, error)
}

// equal compares a and b in constant time for equal lengths. Different
// lengths return false immediately.
func equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
