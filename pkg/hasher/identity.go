package hasher

import (
	"context"

	"github.com/rhuss/identity/pkg/auth"
)

// InsecureIdentity stores passwords as their raw UTF-8 bytes. It exists for
// tests and demos and must never be used in production.
type InsecureIdentity struct{}

// NewInsecureIdentity returns the identity hasher.
func NewInsecureIdentity() *InsecureIdentity { return &InsecureIdentity{} }

// Name returns "identity".
func (*InsecureIdentity) Name() string { return "identity" }

// HashPassword returns the password bytes unchanged.
func (*InsecureIdentity) HashPassword(_ context.Context, _ auth.UserData, password string) (auth.PasswordHash, error) {
	return auth.PasswordHash(password), nil
}

// VerifyPassword compares the stored bytes with password.
func (*InsecureIdentity) VerifyPassword(_ context.Context, _ auth.UserData, hash auth.PasswordHash, password string) (bool, error) {
	return equal(hash, []byte(password)), nil
}
