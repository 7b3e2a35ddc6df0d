package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/identity/pkg/auth"
)

// Issuer signs tokens for authenticated principals.
type Issuer struct {
	config Config
}

// NewIssuer creates an issuer.
func NewIssuer(cfg Config) *Issuer {
	cfg.applyDefaults()
	return &Issuer{config: cfg}
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.config.TTL }

// IssueToken signs a token for p. The payload holds p's claims, then the
// caller's extra claims, then sub, iat, nbf, exp, roles and (if configured)
// iss, which always win.
func (i *Issuer) IssueToken(p *auth.Principal, extra map[string]any) (string, error) {
	if len(i.config.Secret) == 0 {
		return "", errNoSecret
	}

	claims := jwtlib.MapClaims(p.Claims().Map())
	for k, v := range extra {
		claims[k] = v
	}

	now := i.config.Now()
	claims[ClaimSubject] = p.Username()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = now.Add(i.config.TTL).Unix()
	claims[ClaimRoles] = p.Roles().Values()
	if i.config.Issuer != "" {
		claims["iss"] = i.config.Issuer
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
