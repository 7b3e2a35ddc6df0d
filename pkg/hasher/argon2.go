package hasher

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/rhuss/identity/pkg/auth"
)

// Argon2Config holds argon2id parameters. Zero values take the defaults
// recommended by RFC 9106's second choice.
type Argon2Config struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 hashes with argon2id and a random per-call salt. The result is a
// PHC string, so parameters and salt travel with the hash.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 returns an argon2id hasher.
func NewArgon2(cfg Argon2Config) *Argon2 {
	if cfg.Memory == 0 {
		cfg.Memory = 64 * 1024
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 3
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 4
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = 16
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	return &Argon2{cfg: cfg}
}

// Name returns "argon2".
func (*Argon2) Name() string { return "argon2" }

// HashPassword returns $argon2id$v=19$m=..,t=..,p=..$salt$key.
func (h *Argon2) HashPassword(_ context.Context, _ auth.UserData, password string) (auth.PasswordHash, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	b64 := base64.RawStdEncoding
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key))
	return auth.PasswordHash(encoded), nil
}

// VerifyPassword re-derives the key with the parameters embedded in stored.
// A hash that does not decode never matches.
func (h *Argon2) VerifyPassword(_ context.Context, _ auth.UserData, stored auth.PasswordHash, password string) (bool, error) {
	p, salt, key, err := decodeArgon2(string(stored))
	if err != nil {
		slog.Warn("rejecting undecodable password hash", "hasher", h.Name(), "error", err)
		return false, nil
	}
	derived := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return equal(derived, key), nil
}

func decodeArgon2(encoded string) (Argon2Config, []byte, []byte, error) {
	var p Argon2Config

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if p.Memory == 0 || p.Iterations < 1 || p.Parallelism < 1 {
		return p, nil, nil, fmt.Errorf("%w: invalid parameters %s", ErrMalformedHash, parts[3])
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(key) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	return p, salt, key, nil
}
