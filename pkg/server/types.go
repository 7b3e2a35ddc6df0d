package server

import "github.com/rhuss/identity/pkg/auth"

// CredentialsRequest is the body of POST /login and POST /session.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /register. A missing password
// creates an account that cannot log in with a password.
type RegisterRequest struct {
	Username string         `json:"username"`
	Password *string        `json:"password,omitempty"`
	Claims   map[string]any `json:"claims,omitempty"`
}

// RegisterResponse is returned by POST /register.
type RegisterResponse struct {
	ID       auth.UserID `json:"id"`
	Username string      `json:"username"`
}

// TokenRequest is the optional body of POST /token.
type TokenRequest struct {
	Claims map[string]any `json:"claims,omitempty"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// PrincipalResponse describes the authenticated caller.
type PrincipalResponse struct {
	ID       auth.UserID `json:"id"`
	Username string      `json:"username"`
	Roles    auth.Roles  `json:"roles"`
	Claims   auth.Claims `json:"claims"`
}

// ChangePasswordRequest is the body of PUT /me/password. A null
// new_password removes the password.
type ChangePasswordRequest struct {
	CurrentPassword string  `json:"current_password"`
	NewPassword     *string `json:"new_password"`
}

func principalResponse(p *auth.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:       p.ID(),
		Username: p.Username(),
		Roles:    p.Roles(),
		Claims:   p.Claims(),
	}
}
