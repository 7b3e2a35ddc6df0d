package config

import (
	"errors"
	"fmt"
	"slices"
)

// KnownSchemes lists the scheme names accepted in auth.schemes.
var KnownSchemes = []string{"basic", "bearer", "cookie", "apikey"}

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of trace, debug, info, warn, error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateHasher()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateUsers()...)

	return errors.Join(errs...)
}

func (c *Config) validateAuth() []error {
	var errs []error
	a := &c.Auth

	if len(a.Schemes) == 0 {
		errs = append(errs, errors.New("auth.schemes must list at least one scheme"))
	}
	seen := make(map[string]bool, len(a.Schemes))
	for i, s := range a.Schemes {
		if !slices.Contains(KnownSchemes, s) {
			errs = append(errs, fmt.Errorf("auth.schemes[%d]: unknown scheme %q", i, s))
		}
		if seen[s] {
			errs = append(errs, fmt.Errorf("auth.schemes[%d]: duplicate scheme %q", i, s))
		}
		seen[s] = true
	}

	switch a.MissingAuth {
	case "fail", "forward":
	default:
		errs = append(errs, fmt.Errorf("auth.missing_auth must be \"fail\" or \"forward\", got %q", a.MissingAuth))
	}

	if c.SchemeEnabled("bearer") && a.JWT.Secret == "" && a.JWT.SecretFile == "" {
		errs = append(errs, errors.New("auth.jwt.secret or auth.jwt.secret_file is required when the bearer scheme is enabled"))
	}
	if a.JWT.TTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.jwt.ttl must be > 0, got %v", a.JWT.TTL))
	}

	if c.SchemeEnabled("cookie") {
		if a.Cookie.HashKey == "" && a.Cookie.HashKeyFile == "" {
			errs = append(errs, errors.New("auth.cookie.hash_key or auth.cookie.hash_key_file is required when the cookie scheme is enabled"))
		}
		switch len(a.Cookie.BlockKey) {
		case 0, 16, 24, 32:
		default:
			errs = append(errs, fmt.Errorf("auth.cookie.block_key must be 16, 24 or 32 bytes, got %d", len(a.Cookie.BlockKey)))
		}
	}

	if c.SchemeEnabled("apikey") && len(a.APIKeys) == 0 {
		errs = append(errs, errors.New("auth.api_keys must not be empty when the apikey scheme is enabled"))
	}
	for i, k := range a.APIKeys {
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
		}
		if k.Username == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d]: username is required", i))
		}
	}

	if a.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must be >= 0, got %d", a.RateLimit.DefaultRPM))
	}
	for role, rpm := range a.RateLimit.Roles {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.roles[%s] must be >= 0, got %d", role, rpm))
		}
	}

	return errs
}

func (c *Config) validateHasher() []error {
	var errs []error
	h := &c.Hasher

	switch h.Type {
	case "argon2", "bcrypt":
	case "pbkdf2":
		switch h.PBKDF2.Algorithm {
		case "", "sha256", "sha512":
		default:
			errs = append(errs, fmt.Errorf("hasher.pbkdf2.algorithm must be \"sha256\" or \"sha512\", got %q", h.PBKDF2.Algorithm))
		}
		if h.PBKDF2.Seed == "" && h.PBKDF2.SeedFile == "" {
			errs = append(errs, errors.New("hasher.pbkdf2.seed or hasher.pbkdf2.seed_file is required when hasher.type is \"pbkdf2\""))
		}
	case "identity":
		if !h.AllowInsecure {
			errs = append(errs, errors.New("hasher.type \"identity\" stores plaintext passwords and requires hasher.allow_insecure"))
		}
	default:
		errs = append(errs, fmt.Errorf("hasher.type must be one of argon2, pbkdf2, bcrypt, identity, got %q", h.Type))
	}

	if h.Workers < 0 {
		errs = append(errs, fmt.Errorf("hasher.workers must be >= 0, got %d", h.Workers))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	s := &c.Storage

	switch s.Type {
	case "memory":
	case "postgres":
		if s.Postgres.DSN == "" && s.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite":
		if s.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	case "redis":
		if len(s.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("storage.redis.addrs is required when storage.type is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of memory, postgres, sqlite, redis, got %q", s.Type))
	}

	return errs
}

func (c *Config) validateUsers() []error {
	var errs []error
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("users[%d]: username is required", i))
			continue
		}
		if seen[u.Username] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username))
		}
		seen[u.Username] = true
	}
	return errs
}
