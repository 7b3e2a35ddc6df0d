// Package server exposes the authentication core over HTTP: registration,
// password login with token or cookie issuance, and endpoints that require
// an authenticated principal.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/identity/pkg/app"
	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/observability"
)

// Server wraps an http.Server around an App and manages the full lifecycle
// including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	app        *app.App
	mux        *http.ServeMux
	config     ServerConfig
	validation ValidationConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     1 << 20, // 1 MB
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithTimeouts sets the read and write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithMetricsPath sets the metrics endpoint. An empty path disables it.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.config.MetricsPath = path }
}

// WithValidation sets the request validation limits.
func WithValidation(cfg ValidationConfig) ServerOption {
	return func(s *Server) { s.validation = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// New creates a server for a. Default middleware (recovery, request ID,
// logging, metrics, authentication) is applied automatically.
func New(a *app.App, opts ...ServerOption) *Server {
	s := &Server{
		app:        a,
		mux:        http.NewServeMux(),
		config:     DefaultServerConfig(),
		validation: DefaultValidationConfig(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.config.MetricsPath != "" {
		s.mux.Handle("GET "+s.config.MetricsPath, promhttp.Handler())
	}

	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.Handle("GET /me", auth.RequirePrincipal(http.HandlerFunc(s.handleMe)))
	s.mux.Handle("PUT /me/password", auth.RequirePrincipal(http.HandlerFunc(s.handleChangePassword)))

	if s.app.Issuer != nil {
		s.mux.HandleFunc("POST /login", s.handleLogin)
		s.mux.Handle("POST /token", auth.RequirePrincipal(http.HandlerFunc(s.handleToken)))
	}
	if s.app.Sessions != nil {
		s.mux.HandleFunc("POST /session", s.handleSessionCreate)
		s.mux.HandleFunc("DELETE /session", s.handleSessionDelete)
	}
}

// PublicEndpoints lists the paths served without running the chain.
func (s *Server) PublicEndpoints() []string {
	public := slices.Clone(auth.DefaultBypassEndpoints)
	if s.config.MetricsPath != "" && !slices.Contains(public, s.config.MetricsPath) {
		public = append(public, s.config.MetricsPath)
	}
	return append(public, "/register", "/login", "/session")
}

// Handler returns the fully wrapped http.Handler. Use this to integrate
// with another server or test with httptest.
func (s *Server) Handler() http.Handler {
	authed := auth.Middleware(s.app.Chain, s.app.Limiter, s.PublicEndpoints())(s.mux)
	instrumented := observability.MuxMetricsMiddleware(s.mux, authed)
	return Chain(
		Recovery(s.logger),
		RequestID(),
		Logging(s.logger),
	)(instrumented)
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run starts the server and blocks until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

// ServeOn runs the server on the given listener until ctx is done. Used for
// testing.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
