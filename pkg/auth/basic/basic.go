// Package basic implements HTTP Basic authentication (RFC 7617) against a
// password authenticator such as users.Repository.
package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/users"
)

// DefaultRealm is used when no realm is configured.
const DefaultRealm = "Server"

var (
	errBadEncoding = errors.New("basic credentials are not valid base64")
	errBadUTF8     = errors.New("basic credentials are not valid UTF-8")
)

// Authenticator verifies a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*auth.Principal, error)
}

// Scheme is the Basic authentication scheme.
type Scheme struct {
	realm string
	users Authenticator
}

// Ensure Scheme implements auth.Scheme at compile time.
var _ auth.Scheme = (*Scheme)(nil)

// New creates a Basic scheme for realm.
func New(realm string, users Authenticator) *Scheme {
	if realm == "" {
		realm = DefaultRealm
	}
	return &Scheme{realm: realm, users: users}
}

// Name returns "basic".
func (s *Scheme) Name() string { return "basic" }

// Challenge returns the Basic challenge with the realm and UTF-8 charset.
func (s *Scheme) Challenge() string {
	return fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, s.realm)
}

// Authenticate checks every Authorization header value. Values for other
// schemes are skipped; the first Basic value decides the outcome.
func (s *Scheme) Authenticate(ctx context.Context, r *http.Request) auth.Outcome {
	for _, header := range r.Header.Values("Authorization") {
		payload, ok := credentials(header)
		if !ok {
			continue
		}
		return s.authenticate(ctx, payload)
	}
	return auth.Forwarded()
}

func (s *Scheme) authenticate(ctx context.Context, payload string) auth.Outcome {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return auth.Failed(auth.InvalidParams(errBadEncoding))
	}
	if !utf8.Valid(raw) {
		return auth.Failed(auth.InvalidParams(errBadUTF8))
	}

	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return auth.Failed(auth.Unauthenticated())
	}

	p, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return auth.Failed(users.AuthError(err))
	}
	return auth.Succeeded(p)
}

// credentials returns the payload of a "Basic <payload>" header value. The
// scheme name is case-insensitive.
func credentials(header string) (string, bool) {
	scheme, payload, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Basic") {
		return "", false
	}
	return strings.TrimSpace(payload), true
}

// Header returns the Authorization header value for username and password.
func Header(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
