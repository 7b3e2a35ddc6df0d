// Package app wires configuration into a running authentication core: the
// user store, the password hasher, the user repository, the configured
// schemes and the chain that evaluates them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/auth/apikey"
	"github.com/rhuss/identity/pkg/auth/basic"
	"github.com/rhuss/identity/pkg/auth/cookie"
	"github.com/rhuss/identity/pkg/auth/jwt"
	"github.com/rhuss/identity/pkg/config"
	"github.com/rhuss/identity/pkg/hasher"
	"github.com/rhuss/identity/pkg/storage"
	"github.com/rhuss/identity/pkg/storage/memory"
	"github.com/rhuss/identity/pkg/storage/postgres"
	"github.com/rhuss/identity/pkg/storage/redis"
	"github.com/rhuss/identity/pkg/storage/sqlite"
	"github.com/rhuss/identity/pkg/users"
)

// App holds the components built from a Config. There is no package-level
// state; everything a request needs is reachable from here.
type App struct {
	Config *config.Config
	Store  storage.UserStore
	Hasher hasher.Hasher
	Users  *users.Repository
	Chain  *auth.Chain

	// Issuer signs bearer tokens. Nil when no JWT secret is configured.
	Issuer *jwt.Issuer

	// Sessions issues session cookies. Nil when the cookie scheme is not
	// enabled.
	Sessions *cookie.Scheme

	// Limiter is nil when rate limiting is disabled.
	Limiter auth.RateLimiter

	closer io.Closer
}

// New builds the application from cfg, runs scheme setup and seeds the
// configured users. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, closer, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	a, err := NewWithStore(ctx, cfg, store)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	a.closer = closer
	return a, nil
}

// NewWithStore builds the application around an existing store.
func NewWithStore(ctx context.Context, cfg *config.Config, store storage.UserStore) (*App, error) {
	h, err := NewHasher(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("creating hasher: %w", err)
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Hasher: h,
		Users:  users.New(store, h),
	}

	if err := a.buildChain(); err != nil {
		return nil, err
	}
	if err := a.Chain.Setup(ctx); err != nil {
		return nil, fmt.Errorf("scheme setup: %w", err)
	}

	if cfg.Auth.RateLimit.Enabled {
		roles := make(map[string]auth.RoleLimit, len(cfg.Auth.RateLimit.Roles))
		for role, rpm := range cfg.Auth.RateLimit.Roles {
			roles[role] = auth.RoleLimit{RequestsPerMinute: rpm}
		}
		a.Limiter = auth.NewInProcessLimiter(roles, cfg.Auth.RateLimit.DefaultRPM)
	}

	if err := a.SeedUsers(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

// NewStore creates the configured user store. The returned closer is nil
// for stores without external resources.
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.UserStore, io.Closer, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil, nil

	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, s, nil

	case "sqlite":
		s, err := sqlite.New(ctx, sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, s, nil

	case "redis":
		s, err := redis.New(ctx, redis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storage enabled", "type", "redis", "addrs", cfg.Redis.Addrs)
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// NewHasher creates the configured hasher wrapped in a bounded worker pool.
func NewHasher(cfg config.HasherConfig) (hasher.Hasher, error) {
	var h hasher.Hasher
	switch cfg.Type {
	case "argon2":
		h = hasher.NewArgon2(hasher.Argon2Config{
			Memory:      cfg.Argon2.Memory,
			Iterations:  cfg.Argon2.Iterations,
			Parallelism: cfg.Argon2.Parallelism,
			SaltLength:  cfg.Argon2.SaltLength,
			KeyLength:   cfg.Argon2.KeyLength,
		})
	case "pbkdf2":
		p, err := hasher.NewPBKDF2(hasher.PBKDF2Config{
			Algorithm:  cfg.PBKDF2.Algorithm,
			Iterations: cfg.PBKDF2.Iterations,
			KeyLength:  cfg.PBKDF2.KeyLength,
			Seed:       []byte(cfg.PBKDF2.Seed),
		})
		if err != nil {
			return nil, err
		}
		h = p
	case "bcrypt":
		b, err := hasher.NewBcrypt(cfg.Bcrypt.Cost)
		if err != nil {
			return nil, err
		}
		h = b
	case "identity":
		if !cfg.AllowInsecure {
			return nil, errors.New("identity hasher requires allow_insecure")
		}
		slog.Warn("using the identity hasher, passwords are stored in plaintext")
		h = hasher.NewInsecureIdentity()
	default:
		return nil, fmt.Errorf("unknown hasher type %q", cfg.Type)
	}
	return hasher.NewPool(h, cfg.Workers), nil
}

// buildChain creates the schemes in configured order.
func (a *App) buildChain() error {
	cfg := &a.Config.Auth

	policy, err := auth.ParseMissingAuthPolicy(cfg.MissingAuth)
	if err != nil {
		return err
	}

	if cfg.JWT.Secret != "" {
		a.Issuer = jwt.NewIssuer(a.jwtConfig())
	}

	schemes := make([]auth.Scheme, 0, len(cfg.Schemes))
	for _, name := range cfg.Schemes {
		switch name {
		case "basic":
			schemes = append(schemes, basic.New(cfg.Basic.Realm, a.Users))
		case "bearer":
			schemes = append(schemes, jwt.NewScheme(a.jwtConfig(), a.Users))
		case "cookie":
			a.Sessions = cookie.New(cookie.Config{
				Name:     cfg.Cookie.Name,
				HashKey:  []byte(cfg.Cookie.HashKey),
				BlockKey: []byte(cfg.Cookie.BlockKey),
				MaxAge:   cfg.Cookie.MaxAge,
				Path:     cfg.Cookie.Path,
				Secure:   cfg.Cookie.Secure,
			}, a.Users)
			schemes = append(schemes, a.Sessions)
		case "apikey":
			schemes = append(schemes, apikey.New(apiKeyEntries(cfg.APIKeys), a.Users))
		default:
			return fmt.Errorf("unknown scheme %q", name)
		}
	}

	a.Chain = auth.NewChain(policy, schemes...)
	slog.Info("authentication configured", "schemes", cfg.Schemes, "missing_auth", policy.String())
	return nil
}

func (a *App) jwtConfig() jwt.Config {
	c := a.Config.Auth.JWT
	return jwt.Config{
		Secret: []byte(c.Secret),
		TTL:    c.TTL,
		Issuer: c.Issuer,
		Leeway: c.Leeway,
	}
}

func apiKeyEntries(keys []config.APIKeyConfig) []apikey.RawKeyEntry {
	entries := make([]apikey.RawKeyEntry, 0, len(keys))
	for _, k := range keys {
		data := auth.NewUserData(k.Username)
		data.ID = auth.UserID(k.ID)
		data.Roles = auth.NewRoles(k.Roles...)
		entries = append(entries, apikey.RawKeyEntry{Key: k.Key, User: data})
	}
	return entries
}

// SeedUsers adds the users declared in the configuration. Users that
// already exist are left unchanged.
func (a *App) SeedUsers(ctx context.Context) error {
	for _, u := range a.Config.Users {
		data := auth.NewUserData(u.Username)
		data.ID = auth.UserID(u.ID)
		data.Roles = auth.NewRoles(u.Roles...)
		for name, v := range u.Claims {
			cv, err := auth.ClaimFromAny(v)
			if err != nil {
				return fmt.Errorf("seeding user %q: claim %q: %w", u.Username, name, err)
			}
			data.Claims.Add(name, cv)
		}

		var password *string
		if u.Password != "" {
			password = &u.Password
		}

		id, err := a.Users.AddUser(ctx, data, password)
		if errors.Is(err, users.ErrUsernameExists) {
			slog.Info("seed user already exists", "username", u.Username)
			continue
		}
		if err != nil {
			return fmt.Errorf("seeding user %q: %w", u.Username, err)
		}
		slog.Info("seeded user", "username", u.Username, "id", id.String())
	}
	return nil
}

// HealthCheck pings the store if it is backed by an external service.
func (a *App) HealthCheck(ctx context.Context) error {
	if hc, ok := a.Store.(storage.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the store's resources.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
