// Package apikey provides an API key scheme that validates the X-API-Key
// header against a static key store using SHA-256 hashing and
// constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rhuss/identity/pkg/auth"
)

// Header is the request header carrying the key.
const Header = "X-API-Key"

var (
	errEmptyKey   = errors.New("empty api key")
	errUnknownKey = errors.New("unknown api key")
)

// PrincipalBuilder turns configured user data into a principal.
type PrincipalBuilder interface {
	PrincipalFromData(data auth.UserData) (*auth.Principal, error)
}

// KeyEntry maps a key hash to the user it authenticates.
type KeyEntry struct {
	KeyHash [32]byte
	User    auth.UserData
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key  string
	User auth.UserData
}

// Scheme validates API keys against a static key store.
type Scheme struct {
	keys    []KeyEntry
	builder PrincipalBuilder
}

// Ensure Scheme implements auth.Scheme at compile time.
var _ auth.Scheme = (*Scheme)(nil)

// New creates an API key scheme from a list of raw keys and users.
// Keys are hashed immediately; plaintext keys are not stored. A user
// without an ID is identified by its username.
func New(entries []RawKeyEntry, builder PrincipalBuilder) *Scheme {
	s := &Scheme{builder: builder}
	for _, e := range entries {
		user := e.User
		if user.ID == "" {
			user.ID = auth.UserID(user.Username)
		}
		s.keys = append(s.keys, KeyEntry{
			KeyHash: sha256.Sum256([]byte(e.Key)),
			User:    user,
		})
	}
	return s
}

// Name returns "apikey".
func (s *Scheme) Name() string { return "apikey" }

// Challenge returns "ApiKey".
func (s *Scheme) Challenge() string { return "ApiKey" }

// Authenticate hashes the X-API-Key header and compares it against the
// stored hashes.
//
// Decision outcomes:
//   - Forward: no X-API-Key header
//   - Failure (Unauthenticated): key present but empty or unknown
//   - Success: key matches a configured entry
func (s *Scheme) Authenticate(_ context.Context, r *http.Request) auth.Outcome {
	values := r.Header.Values(Header)
	if len(values) == 0 {
		return auth.Forwarded()
	}

	key := strings.TrimSpace(values[0])
	if key == "" {
		return auth.Failed(&auth.Error{Kind: auth.KindUnauthenticated, Cause: errEmptyKey})
	}

	keyHash := sha256.Sum256([]byte(key))

	// Every entry is compared so the time taken does not depend on
	// which key matched.
	match := -1
	for i, entry := range s.keys {
		if subtle.ConstantTimeCompare(keyHash[:], entry.KeyHash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Failed(&auth.Error{Kind: auth.KindUnauthenticated, Cause: errUnknownKey})
	}

	p, err := s.builder.PrincipalFromData(s.keys[match].User)
	if err != nil {
		return auth.Failed(auth.Other(err))
	}
	return auth.Succeeded(p)
}
