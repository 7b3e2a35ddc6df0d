package hasher

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rhuss/identity/pkg/auth"
)

// PBKDF2 defaults.
const (
	DefaultPBKDF2Iterations = 100_000
	DefaultPBKDF2KeyLength  = 32
)

// PBKDF2Config configures the PBKDF2 hasher.
type PBKDF2Config struct {
	// Algorithm is the HMAC digest: "sha256" (default) or "sha512".
	Algorithm string

	// Iterations defaults to DefaultPBKDF2Iterations.
	Iterations int

	// KeyLength is the derived key size in bytes. Defaults to
	// DefaultPBKDF2KeyLength.
	KeyLength int

	// Seed is the server-wide salt prefix. The username is appended to it,
	// so renaming a user invalidates the stored hash.
	Seed []byte
}

// PBKDF2 derives password hashes with PBKDF2-HMAC. The hash carries no
// algorithm metadata; verification assumes the same configuration.
type PBKDF2 struct {
	newHash    func() hash.Hash
	iterations int
	keyLength  int
	seed       []byte
}

// NewPBKDF2 returns a PBKDF2 hasher, filling in defaults.
func NewPBKDF2(cfg PBKDF2Config) (*PBKDF2, error) {
	h := &PBKDF2{
		iterations: cfg.Iterations,
		keyLength:  cfg.KeyLength,
		seed:       append([]byte(nil), cfg.Seed...),
	}
	switch cfg.Algorithm {
	case "", "sha256":
		h.newHash = sha256.New
	case "sha512":
		h.newHash = sha512.New
	default:
		return nil, fmt.Errorf("unsupported pbkdf2 algorithm %q", cfg.Algorithm)
	}
	if h.iterations <= 0 {
		h.iterations = DefaultPBKDF2Iterations
	}
	if h.keyLength <= 0 {
		h.keyLength = DefaultPBKDF2KeyLength
	}
	return h, nil
}

// Name returns "pbkdf2".
func (*PBKDF2) Name() string { return "pbkdf2" }

func (h *PBKDF2) salt(user auth.UserData) []byte {
	salt := make([]byte, 0, len(h.seed)+len(user.Username))
	salt = append(salt, h.seed...)
	return append(salt, user.Username...)
}

// HashPassword derives the key for password.
func (h *PBKDF2) HashPassword(_ context.Context, user auth.UserData, password string) (auth.PasswordHash, error) {
	return pbkdf2.Key([]byte(password), h.salt(user), h.iterations, h.keyLength, h.newHash), nil
}

// VerifyPassword re-derives the key and compares it in constant time. A
// stored hash of the wrong length is rejected without deriving.
func (h *PBKDF2) VerifyPassword(_ context.Context, user auth.UserData, stored auth.PasswordHash, password string) (bool, error) {
	if len(stored) != h.keyLength {
		return false, nil
	}
	derived := pbkdf2.Key([]byte(password), h.salt(user), h.iterations, h.keyLength, h.newHash)
	return equal(derived, stored), nil
}
