// Package config provides unified configuration for the identity service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Optional .env file
//  4. Environment variable overrides (IDENTITY_ prefix)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Config holds all configuration for the identity service.
type Config struct {
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER_"`
	Log           LogConfig           `yaml:"log" envPrefix:"LOG_"`
	Auth          AuthConfig          `yaml:"auth" envPrefix:"AUTH_"`
	Hasher        HasherConfig        `yaml:"hasher" envPrefix:"HASHER_"`
	Storage       StorageConfig       `yaml:"storage" envPrefix:"STORAGE_"`
	Users         []UserConfig        `yaml:"users"`
	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`                         // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`         // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`       // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"` // default: 15s
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // "trace", "debug", "info", "warn", "error"; default: "info"
	Format string `yaml:"format" env:"FORMAT"` // "text" or "json"; default: "text"

	// Debug lists debug categories (chain, schemes, storage, hasher,
	// config, all), comma separated. IDENTITY_DEBUG overrides it.
	Debug string `yaml:"debug" env:"DEBUG"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Schemes lists the enabled schemes in evaluation order:
	// "basic", "bearer", "cookie", "apikey".
	Schemes     []string        `yaml:"schemes" env:"SCHEMES" envSeparator:","`
	MissingAuth string          `yaml:"missing_auth" env:"MISSING_AUTH"` // "fail" or "forward"; default: "fail"
	Basic       BasicConfig     `yaml:"basic" envPrefix:"BASIC_"`
	JWT         JWTConfig       `yaml:"jwt" envPrefix:"JWT_"`
	Cookie      CookieConfig    `yaml:"cookie" envPrefix:"COOKIE_"`
	APIKeys     []APIKeyConfig  `yaml:"api_keys"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// BasicConfig holds Basic scheme settings.
type BasicConfig struct {
	Realm string `yaml:"realm" env:"REALM"` // default: "Server"
}

// JWTConfig holds bearer token settings.
type JWTConfig struct {
	Secret     string        `yaml:"secret" env:"SECRET"`
	SecretFile string        `yaml:"secret_file" env:"SECRET_FILE"` // _file variant for secret
	TTL        time.Duration `yaml:"ttl" env:"TTL"`                 // default: 180 days
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	Leeway     time.Duration `yaml:"leeway" env:"LEEWAY"`
}

// CookieConfig holds session cookie settings.
type CookieConfig struct {
	Name         string        `yaml:"name" env:"NAME"` // default: "identity"
	HashKey      string        `yaml:"hash_key" env:"HASH_KEY"`
	HashKeyFile  string        `yaml:"hash_key_file" env:"HASH_KEY_FILE"` // _file variant for hash_key
	BlockKey     string        `yaml:"block_key" env:"BLOCK_KEY"`
	BlockKeyFile string        `yaml:"block_key_file" env:"BLOCK_KEY_FILE"` // _file variant for block_key
	MaxAge       time.Duration `yaml:"max_age" env:"MAX_AGE"`               // default: 30 days
	Path         string        `yaml:"path" env:"PATH"`                     // default: "/"
	Secure       bool          `yaml:"secure" env:"SECURE"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string   `yaml:"key"`
	KeyFile  string   `yaml:"key_file"` // _file variant for key
	Username string   `yaml:"username"`
	ID       string   `yaml:"id"`
	Roles    []string `yaml:"roles"`
}

// RateLimitConfig holds per-role request limits for authenticated callers.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled" env:"ENABLED"`
	DefaultRPM int            `yaml:"default_rpm" env:"DEFAULT_RPM"`
	Roles      map[string]int `yaml:"roles" env:"ROLES"` // role -> requests per minute; 0 means unlimited
}

// HasherConfig selects and tunes the password hasher.
type HasherConfig struct {
	Type    string       `yaml:"type" env:"TYPE"`       // "argon2", "pbkdf2", "bcrypt" or "identity"; default: "argon2"
	Workers int          `yaml:"workers" env:"WORKERS"` // concurrent hash computations; 0 means GOMAXPROCS
	PBKDF2  PBKDF2Config `yaml:"pbkdf2" envPrefix:"PBKDF2_"`
	Argon2  Argon2Config `yaml:"argon2" envPrefix:"ARGON2_"`
	Bcrypt  BcryptConfig `yaml:"bcrypt" envPrefix:"BCRYPT_"`

	// AllowInsecure must be set to use the identity hasher.
	AllowInsecure bool `yaml:"allow_insecure" env:"ALLOW_INSECURE"`
}

// PBKDF2Config holds PBKDF2 parameters.
type PBKDF2Config struct {
	Algorithm  string `yaml:"algorithm" env:"ALGORITHM"`   // default: "sha256"
	Iterations int    `yaml:"iterations" env:"ITERATIONS"` // default: 100000
	KeyLength  int    `yaml:"key_length" env:"KEY_LENGTH"` // default: 32
	Seed       string `yaml:"seed" env:"SEED"`
	SeedFile   string `yaml:"seed_file" env:"SEED_FILE"` // _file variant for seed
}

// Argon2Config holds argon2id parameters. Zero values select the hasher
// defaults.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory" env:"MEMORY"` // KiB
	Iterations  uint32 `yaml:"iterations" env:"ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM"`
	SaltLength  uint32 `yaml:"salt_length" env:"SALT_LENGTH"`
	KeyLength   uint32 `yaml:"key_length" env:"KEY_LENGTH"`
}

// BcryptConfig holds bcrypt parameters.
type BcryptConfig struct {
	Cost int `yaml:"cost" env:"COST"` // 0 selects bcrypt.DefaultCost
}

// StorageConfig selects the user store.
type StorageConfig struct {
	Type     string         `yaml:"type" env:"TYPE"` // "memory", "postgres", "sqlite" or "redis"; default: "memory"
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" env:"DSN"`
	DSNFile        string `yaml:"dsn_file" env:"DSN_FILE"`   // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns" env:"MAX_CONNS"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"MIGRATE_ON_START"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"` // default: "identity.db"
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addrs        []string `yaml:"addrs" env:"ADDRS" envSeparator:","`
	Username     string   `yaml:"username" env:"USERNAME"`
	Password     string   `yaml:"password" env:"PASSWORD"`
	PasswordFile string   `yaml:"password_file" env:"PASSWORD_FILE"` // _file variant for password
	DB           int      `yaml:"db" env:"DB"`
	Prefix       string   `yaml:"prefix" env:"PREFIX"`
}

// UserConfig declares a user seeded at startup.
type UserConfig struct {
	Username     string         `yaml:"username"`
	ID           string         `yaml:"id"`
	Password     string         `yaml:"password"`
	PasswordFile string         `yaml:"password_file"` // _file variant for password
	Roles        []string       `yaml:"roles"`
	Claims       map[string]any `yaml:"claims"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"` // default: true
	Path    string `yaml:"path" env:"PATH"`       // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Schemes:     []string{"basic", "bearer", "cookie"},
			MissingAuth: "fail",
			Basic:       BasicConfig{Realm: "Server"},
			JWT:         JWTConfig{TTL: 180 * 24 * time.Hour},
			Cookie: CookieConfig{
				Name:   "identity",
				MaxAge: 30 * 24 * time.Hour,
				Path:   "/",
			},
		},
		Hasher: HasherConfig{
			Type: "argon2",
			PBKDF2: PBKDF2Config{
				Algorithm:  "sha256",
				Iterations: 100_000,
				KeyLength:  32,
			},
		},
		Storage: StorageConfig{
			Type:     "memory",
			Postgres: PostgresConfig{MaxConns: 10},
			SQLite:   SQLiteConfig{Path: "identity.db"},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// SchemeEnabled reports whether name is in the configured scheme list.
func (c *Config) SchemeEnabled(name string) bool {
	for _, s := range c.Auth.Schemes {
		if s == name {
			return true
		}
	}
	return false
}
