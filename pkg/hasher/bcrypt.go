package hasher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/identity/pkg/auth"
)

// Bcrypt hashes with bcrypt. Like argon2 the output is self-describing.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A cost of 0 means bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Name returns "bcrypt".
func (*Bcrypt) Name() string { return "bcrypt" }

// HashPassword returns the bcrypt string for password.
func (h *Bcrypt) HashPassword(_ context.Context, _ auth.UserData, password string) (auth.PasswordHash, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return out, nil
}

// VerifyPassword checks password against the stored bcrypt string.
func (h *Bcrypt) VerifyPassword(_ context.Context, _ auth.UserData, stored auth.PasswordHash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(stored, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrHashTooShort):
		return false, nil
	default:
		slog.Warn("rejecting undecodable password hash", "hasher", h.Name(), "error", err)
		return false, nil
	}
}
