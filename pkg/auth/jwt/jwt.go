// Package jwt provides a bearer-token scheme that validates HS256-signed
// JWTs, and an Issuer that mints them for login endpoints.
//
// The token is the credential: a valid token is turned into a principal
// from its claims without consulting the user store. The "sub" claim
// becomes both the principal's ID and username; an optional "roles" array
// of strings becomes its role set; every other non-registered claim is
// carried over as a typed claim value.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/debug"
)

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 180 * 24 * time.Hour

// minSecretLength is the HS256 key size below which Setup warns.
const minSecretLength = 32

// Claim names handled by the scheme itself.
const (
	ClaimSubject = "sub"
	ClaimRoles   = "roles"
)

// registered claims are never copied into a principal's claims.
var registered = map[string]bool{
	"iss": true, "sub": true, "aud": true, "exp": true,
	"nbf": true, "iat": true, "jti": true, ClaimRoles: true,
}

var (
	errMissingSubject = errors.New("token has no subject")
	errInvalidRoles   = errors.New("roles claim must be an array of strings")
	errNoSecret       = errors.New("jwt signing secret is empty")
)

// Config holds the settings shared by the scheme and the issuer.
type Config struct {
	// Secret is the HMAC-SHA-256 key.
	Secret []byte

	// TTL is the lifetime of issued tokens. Default: 180 days.
	TTL time.Duration

	// Issuer, if set, is written to the iss claim on issuance and
	// required on validation.
	Issuer string

	// Leeway is the clock skew tolerated for exp, nbf and iat.
	Leeway time.Duration

	// Now overrides the clock (useful for testing).
	Now func() time.Time
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// PrincipalBuilder turns verified claims into a principal.
type PrincipalBuilder interface {
	PrincipalFromData(data auth.UserData) (*auth.Principal, error)
}

// Scheme validates "Authorization: Bearer <jwt>" headers.
type Scheme struct {
	config  Config
	builder PrincipalBuilder
}

// Ensure Scheme implements auth.Scheme and auth.SetupScheme at compile time.
var (
	_ auth.Scheme      = (*Scheme)(nil)
	_ auth.SetupScheme = (*Scheme)(nil)
)

// NewScheme creates a bearer scheme.
func NewScheme(cfg Config, builder PrincipalBuilder) *Scheme {
	cfg.applyDefaults()
	return &Scheme{config: cfg, builder: builder}
}

// Name returns "bearer".
func (s *Scheme) Name() string { return "bearer" }

// Challenge returns "Bearer".
func (s *Scheme) Challenge() string { return "Bearer" }

// Setup checks the signing key.
func (s *Scheme) Setup(context.Context) error {
	if len(s.config.Secret) == 0 {
		return errNoSecret
	}
	if len(s.config.Secret) < minSecretLength {
		slog.Warn("jwt signing secret is shorter than recommended",
			"length", len(s.config.Secret),
			"recommended", minSecretLength,
		)
	}
	return nil
}

// Authenticate validates the first Bearer value among the request's
// Authorization headers.
//
// Decision outcomes:
//   - Forward: no Authorization header, no Bearer value or an empty token
//   - Failure (InvalidParams): malformed, badly signed or expired token, or bad claims
//   - Success: valid token
func (s *Scheme) Authenticate(_ context.Context, r *http.Request) auth.Outcome {
	for _, header := range r.Header.Values("Authorization") {
		token, ok := bearer(header)
		if !ok {
			continue
		}
		return s.authenticate(token)
	}
	return auth.Forwarded()
}

func (s *Scheme) authenticate(tokenStr string) auth.Outcome {

	claims, err := s.parse(tokenStr)
	if err != nil {
		debug.Log("schemes", "JWT validation failed", "scheme", "bearer", "error", err)
		return auth.Failed(auth.InvalidParams(err))
	}

	data, err := userData(claims)
	if err != nil {
		return auth.Failed(auth.InvalidParams(err))
	}

	p, err := s.builder.PrincipalFromData(data)
	if err != nil {
		return auth.Failed(auth.InvalidParams(err))
	}
	return auth.Succeeded(p)
}

// parse verifies the signature and time claims and returns the payload.
func (s *Scheme) parse(tokenStr string) (jwtlib.MapClaims, error) {
	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return s.config.Secret, nil
	}, s.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT: %w", err)
	}
	return claims, nil
}

// parserOptions builds JWT parser options based on the configuration.
func (s *Scheme) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithJSONNumber(),
		jwtlib.WithTimeFunc(s.config.Now),
	}

	if s.config.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(s.config.Leeway))
	}

	if s.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.config.Issuer))
	}

	return opts
}

// userData reconstructs user data from verified claims.
func userData(claims jwtlib.MapClaims) (auth.UserData, error) {
	sub, _ := claims[ClaimSubject].(string)
	if sub == "" {
		return auth.UserData{}, errMissingSubject
	}

	data := auth.NewUserData(sub)
	data.ID = auth.UserID(sub)

	if raw, ok := claims[ClaimRoles]; ok {
		arr, ok := raw.([]any)
		if !ok {
			return auth.UserData{}, errInvalidRoles
		}
		for _, v := range arr {
			role, ok := v.(string)
			if !ok {
				return auth.UserData{}, errInvalidRoles
			}
			data.Roles.Add(role)
		}
	}

	for name, raw := range claims {
		if registered[name] {
			continue
		}
		v, err := auth.ClaimFromAny(raw)
		if err != nil {
			return auth.UserData{}, fmt.Errorf("claim %q: %w", name, err)
		}
		data.Claims.Add(name, v)
	}

	return data, nil
}

// bearer returns the token of a "Bearer <token>" header value. The scheme
// name is case-insensitive. A bare "Bearer" carries no token and is not
// a bearer credential.
func bearer(header string) (string, bool) {
	scheme, token, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
