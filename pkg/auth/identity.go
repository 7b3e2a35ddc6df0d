package auth

import (
	"errors"

	"github.com/google/uuid"
)

// UserID is an opaque, non-empty user identifier.
type UserID string

// NewUserID returns a fresh random identifier.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

func (id UserID) String() string { return string(id) }

// PasswordHash is the output of a password hasher. It must only be verified
// by the hasher implementation that produced it.
type PasswordHash []byte

// UserData is the mutable, not yet verified shape of a principal. It is used
// for registration requests and freshly decoded token claims.
type UserData struct {
	ID       UserID
	Username string
	Claims   Claims
	Roles    Roles
}

// NewUserData returns UserData for username with empty claims and roles.
func NewUserData(username string) UserData {
	return UserData{
		Username: username,
		Claims:   Claims{},
		Roles:    Roles{},
	}
}

// Errors returned by NewPrincipal.
var (
	ErrEmptyUsername = errors.New("principal username must not be empty")
	ErrEmptyUserID   = errors.New("principal id must not be empty")
)

// Principal is an authenticated caller. It is immutable: accessors return
// copies of the claim and role collections.
type Principal struct {
	id       UserID
	username string
	claims   Claims
	roles    Roles
}

// NewPrincipal builds a Principal from verified data.
func NewPrincipal(data UserData) (*Principal, error) {
	if data.Username == "" {
		return nil, ErrEmptyUsername
	}
	if data.ID == "" {
		return nil, ErrEmptyUserID
	}
	return &Principal{
		id:       data.ID,
		username: data.Username,
		claims:   data.Claims.Clone(),
		roles:    data.Roles.Clone(),
	}, nil
}

// ID returns the principal's identifier.
func (p *Principal) ID() UserID { return p.id }

// Username returns the principal's username.
func (p *Principal) Username() string { return p.username }

// Claims returns a copy of the principal's claims.
func (p *Principal) Claims() Claims { return p.claims.Clone() }

// Roles returns a copy of the principal's role set.
func (p *Principal) Roles() Roles { return p.roles.Clone() }

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool { return p.roles.Contains(role) }

// Data returns a UserData copy of the principal, e.g. for token issuance.
func (p *Principal) Data() UserData {
	return UserData{
		ID:       p.id,
		Username: p.username,
		Claims:   p.claims.Clone(),
		Roles:    p.roles.Clone(),
	}
}

// valid reports whether p satisfies the principal invariants.
func (p *Principal) valid() bool {
	return p != nil && p.username != "" && p.id != ""
}
