package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/identity/pkg/observability"
)

// Middleware creates HTTP middleware from a Chain and optional RateLimiter.
// It checks the bypass list, runs authentication once per request, stores
// the principal in the context and optionally enforces rate limits.
//
// Forwarded requests continue anonymously; use RequirePrincipal on routes
// that need an identity. Any 401 response written downstream receives the
// chain's challenges.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			w = &challengeWriter{ResponseWriter: w, chain: chain}
			result := chain.Authenticate(r.Context(), r)

			switch result.Decision {
			case Failure:
				authErr := result.Error()
				if authErr.Kind == KindOther {
					slog.Error("authentication error",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", authErr.Cause,
					)
				} else {
					slog.Warn("authentication failed",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", authErr,
					)
				}
				WriteError(w, authErr)
				return

			case Forward:
				next.ServeHTTP(w, r)
				return
			}

			slog.Debug("authentication succeeded",
				"username", result.Principal.Username(),
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Principal); err != nil {
					role := "default"
					var le *LimitError
					if errors.As(err, &le) {
						role = le.Role
					}
					slog.Warn("rate limit exceeded",
						"username", result.Principal.Username(),
						"role", role,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(role).Inc()
					writeJSONError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
					return
				}
			}

			ctx := SetPrincipal(r.Context(), result.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects anonymous requests with 401. It must run inside
// Middleware so the challenges are attached.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			WriteError(w, Unauthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteError writes the client-facing form of err. Only the category is
// exposed, never the cause.
func WriteError(w http.ResponseWriter, err *Error) {
	switch err.Kind {
	case KindUnauthenticated:
		writeJSONError(w, err.HTTPStatus(), "unauthenticated", "authentication required")
	case KindInvalidParams:
		writeJSONError(w, err.HTTPStatus(), "invalid_request", "invalid authentication parameters")
	default:
		writeJSONError(w, err.HTTPStatus(), "server_error", "internal authentication error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": typ, "message": msg},
	})
}

// challengeWriter adds the chain's challenges to any 401 response.
type challengeWriter struct {
	http.ResponseWriter
	chain       *Chain
	wroteHeader bool
}

func (w *challengeWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if status == http.StatusUnauthorized {
			w.chain.WriteChallenges(w.Header())
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *challengeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *challengeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
