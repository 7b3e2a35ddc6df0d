// Package cookie implements a session scheme backed by a tamper-protected
// cookie holding {"username": "..."}.
//
// The cookie is the proof of identity: a valid cookie is re-hydrated into a
// principal by a lookup only, with no password check. Cookies are signed
// (and optionally encrypted) with gorilla/securecookie, which also enforces
// their maximum age. Sessions are not revoked when a password changes.
package cookie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/debug"
	"github.com/rhuss/identity/pkg/users"
)

// DefaultName is the cookie name used when none is configured.
const DefaultName = "identity"

// DefaultMaxAge is the session lifetime used when none is configured.
const DefaultMaxAge = 30 * 24 * time.Hour

var (
	errNoHashKey      = errors.New("cookie hash key is empty")
	errBlockKeyLength = errors.New("cookie block key must be 16, 24 or 32 bytes")
	errEmptyUsername  = errors.New("session cookie has no username")
)

// Config holds the cookie settings.
type Config struct {
	// Name of the cookie. Default: "identity".
	Name string

	// HashKey authenticates the cookie value with HMAC-SHA-256. Required.
	HashKey []byte

	// BlockKey, if set, encrypts the cookie value with AES. It must be 16,
	// 24 or 32 bytes long.
	BlockKey []byte

	// MaxAge bounds the session lifetime. Default: 30 days.
	MaxAge time.Duration

	// Path of the cookie. Default: "/".
	Path string

	// Secure restricts the cookie to HTTPS.
	Secure bool
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Path == "" {
		c.Path = "/"
	}
}

// Finder resolves a username to a principal without a password.
type Finder interface {
	FindByUsername(ctx context.Context, username string) (*auth.Principal, error)
}

// session is the cookie payload.
type session struct {
	Username string `json:"username"`
}

// Scheme is the cookie session scheme.
type Scheme struct {
	config Config
	codec  *securecookie.SecureCookie
	users  Finder
}

// Ensure Scheme implements auth.Scheme and auth.SetupScheme at compile time.
var (
	_ auth.Scheme      = (*Scheme)(nil)
	_ auth.SetupScheme = (*Scheme)(nil)
)

// New creates a cookie scheme.
func New(cfg Config, users Finder) *Scheme {
	cfg.applyDefaults()
	if len(cfg.BlockKey) == 0 {
		// securecookie only skips encryption for a nil block key.
		cfg.BlockKey = nil
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.MaxAge(int(cfg.MaxAge / time.Second))
	// The payload is already JSON.
	codec.SetSerializer(securecookie.NopEncoder{})

	return &Scheme{config: cfg, codec: codec, users: users}
}

// Name returns "cookie".
func (s *Scheme) Name() string { return "cookie" }

// Challenge returns "Cookie".
func (s *Scheme) Challenge() string { return "Cookie" }

// Setup checks the key material.
func (s *Scheme) Setup(context.Context) error {
	if len(s.config.HashKey) == 0 {
		return errNoHashKey
	}
	switch len(s.config.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return errBlockKeyLength
	}
	return nil
}

// Authenticate reads the session cookie.
//
// Decision outcomes:
//   - Forward: no cookie, or one that fails verification or has expired
//   - Failure (InvalidParams): verified cookie with a malformed payload
//   - Failure (Unauthenticated): the user no longer exists
//   - Success: the user was found
func (s *Scheme) Authenticate(ctx context.Context, r *http.Request) auth.Outcome {
	c, err := r.Cookie(s.config.Name)
	if err != nil {
		return auth.Forwarded()
	}

	var raw []byte
	if err := s.codec.Decode(s.config.Name, c.Value, &raw); err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			debug.Log("schemes", "session cookie ignored", "scheme", "cookie", "error", err)
			return auth.Forwarded()
		}
		return auth.Failed(auth.Other(fmt.Errorf("decoding session cookie: %w", err)))
	}

	var sess session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return auth.Failed(auth.InvalidParams(fmt.Errorf("session payload: %w", err)))
	}
	if sess.Username == "" {
		return auth.Failed(auth.InvalidParams(errEmptyUsername))
	}

	p, err := s.users.FindByUsername(ctx, sess.Username)
	if errors.Is(err, users.ErrUserNotFound) {
		return auth.Failed(&auth.Error{Kind: auth.KindUnauthenticated, Cause: err})
	}
	if err != nil {
		return auth.Failed(auth.Other(err))
	}
	return auth.Succeeded(p)
}

// SignIn sets a session cookie for p.
func (s *Scheme) SignIn(w http.ResponseWriter, p *auth.Principal) error {
	raw, err := json.Marshal(session{Username: p.Username()})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	value, err := s.codec.Encode(s.config.Name, raw)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Name,
		Value:    value,
		Path:     s.config.Path,
		MaxAge:   int(s.config.MaxAge / time.Second),
		Secure:   s.config.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SignOut clears the session cookie.
func (s *Scheme) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Name,
		Value:    "",
		Path:     s.config.Path,
		MaxAge:   -1,
		Secure:   s.config.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
