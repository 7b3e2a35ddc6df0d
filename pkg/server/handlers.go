package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/users"
)

// handleRegister handles POST /register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if apiErr := ValidateRegister(&req, s.validation); apiErr != nil {
		WriteAPIError(w, apiErr)
		return
	}

	data := auth.NewUserData(req.Username)
	for name, v := range req.Claims {
		cv, err := auth.ClaimFromAny(v)
		if err != nil {
			WriteAPIError(w, NewInvalidRequestError("claims", fmt.Sprintf("claim %q has an unsupported value", name)))
			return
		}
		data.Claims.Add(name, cv)
	}

	id, err := s.app.Users.AddUser(r.Context(), data, req.Password)
	if errors.Is(err, users.ErrUsernameExists) {
		WriteAPIError(w, NewConflictError("username", "username already exists"))
		return
	}
	if err != nil {
		s.serverError(w, r, "registering user", err)
		return
	}

	s.logger.InfoContext(r.Context(), "user registered",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("username", req.Username),
		slog.String("id", id.String()),
	)
	writeJSON(w, http.StatusCreated, RegisterResponse{ID: id, Username: req.Username})
}

// handleLogin handles POST /login: password credentials in, bearer token out.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := s.login(w, r)
	if !ok {
		return
	}
	s.writeToken(w, r, p, nil)
}

// handleToken handles POST /token: issues a bearer token for the principal
// established by the chain, with optional extra claims.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	s.writeToken(w, r, auth.PrincipalFromContext(r.Context()), req.Claims)
}

// handleSessionCreate handles POST /session: password credentials in,
// session cookie out.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.login(w, r)
	if !ok {
		return
	}
	if err := s.app.Sessions.SignIn(w, p); err != nil {
		s.serverError(w, r, "signing in", err)
		return
	}
	writeJSON(w, http.StatusOK, principalResponse(p))
}

// handleSessionDelete handles DELETE /session.
func (s *Server) handleSessionDelete(w http.ResponseWriter, _ *http.Request) {
	s.app.Sessions.SignOut(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalResponse(auth.PrincipalFromContext(r.Context())))
}

// handleChangePassword handles PUT /me/password. The current password must
// be supplied whatever scheme authenticated the request.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req ChangePasswordRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if apiErr := ValidateChangePassword(&req, s.validation); apiErr != nil {
		WriteAPIError(w, apiErr)
		return
	}

	if _, err := s.app.Users.Authenticate(r.Context(), p.Username(), req.CurrentPassword); err != nil {
		s.authFailure(w, r, p.Username(), err)
		return
	}

	err := s.app.Users.ChangePassword(r.Context(), p.Username(), req.NewPassword)
	if err != nil {
		s.authFailure(w, r, p.Username(), err)
		return
	}

	s.logger.InfoContext(r.Context(), "password changed",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("username", p.Username()),
		slog.Bool("removed", req.NewPassword == nil),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz handles GET /readyz. It reports the store's health.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.app.HealthCheck(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "readiness check failed", slog.String("error", err.Error()))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// login reads and verifies password credentials from the body. It writes
// the error response itself and reports whether the caller may continue.
func (s *Server) login(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	var req CredentialsRequest
	if !s.decode(w, r, &req, false) {
		return nil, false
	}
	if apiErr := ValidateCredentials(&req, s.validation); apiErr != nil {
		WriteAPIError(w, apiErr)
		return nil, false
	}

	p, err := s.app.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.authFailure(w, r, req.Username, err)
		return nil, false
	}
	return p, true
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, p *auth.Principal, extra map[string]any) {
	token, err := s.app.Issuer.IssueToken(p, extra)
	if err != nil {
		s.serverError(w, r, "issuing token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.app.Issuer.TTL().Seconds()),
	})
}

// authFailure maps a repository error to the auth error response.
func (s *Server) authFailure(w http.ResponseWriter, r *http.Request, username string, err error) {
	authErr := users.AuthError(err)
	if authErr.Kind == auth.KindOther {
		s.serverError(w, r, "verifying credentials", err)
		return
	}
	s.logger.WarnContext(r.Context(), "credentials rejected",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("username", username),
		slog.String("reason", err.Error()),
	)
	auth.WriteError(w, authErr)
}

// serverError logs err and writes a generic 500 without the cause.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.ErrorContext(r.Context(), op+" failed",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	WriteAPIError(w, NewServerError("internal server error"))
}

// decode reads a JSON body into v. With optional set, an empty body leaves
// v unchanged. It writes the error response itself and reports whether the
// caller may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
		WriteErrorResponse(w,
			NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w,
				NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", s.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		WriteAPIError(w, NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
