package server

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxUsernameLength int
	MaxPasswordLength int
	MaxClaims         int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxUsernameLength: 256,
		MaxPasswordLength: 1024,
		MaxClaims:         64,
	}
}

// ValidateRegister checks a RegisterRequest. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateRegister(req *RegisterRequest, cfg ValidationConfig) *APIError {
	if err := validateUsername(req.Username, cfg); err != nil {
		return err
	}
	if req.Password != nil {
		if err := validatePassword("password", *req.Password, cfg); err != nil {
			return err
		}
	}
	if cfg.MaxClaims > 0 && len(req.Claims) > cfg.MaxClaims {
		return NewInvalidRequestError("claims",
			fmt.Sprintf("claims exceeds maximum of %d", cfg.MaxClaims))
	}
	return nil
}

// ValidateCredentials checks a CredentialsRequest.
func ValidateCredentials(req *CredentialsRequest, cfg ValidationConfig) *APIError {
	if req.Username == "" {
		return NewInvalidRequestError("username", "username is required")
	}
	return validatePassword("password", req.Password, cfg)
}

// ValidateChangePassword checks a ChangePasswordRequest.
func ValidateChangePassword(req *ChangePasswordRequest, cfg ValidationConfig) *APIError {
	if req.NewPassword == nil {
		return nil
	}
	return validatePassword("new_password", *req.NewPassword, cfg)
}

func validateUsername(username string, cfg ValidationConfig) *APIError {
	if username == "" {
		return NewInvalidRequestError("username", "username is required")
	}
	if !utf8.ValidString(username) {
		return NewInvalidRequestError("username", "username must be valid UTF-8")
	}
	if cfg.MaxUsernameLength > 0 && len(username) > cfg.MaxUsernameLength {
		return NewInvalidRequestError("username",
			fmt.Sprintf("username exceeds maximum of %d bytes", cfg.MaxUsernameLength))
	}
	// Basic credentials split on the first colon.
	if strings.Contains(username, ":") {
		return NewInvalidRequestError("username", "username must not contain ':'")
	}
	return nil
}

func validatePassword(param, password string, cfg ValidationConfig) *APIError {
	if cfg.MaxPasswordLength > 0 && len(password) > cfg.MaxPasswordLength {
		return NewInvalidRequestError(param,
			fmt.Sprintf("%s exceeds maximum of %d bytes", param, cfg.MaxPasswordLength))
	}
	return nil
}
