package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variable overrides.
const EnvPrefix = "IDENTITY_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, IDENTITY_CONFIG env, ./config.yaml, /etc/identity/config.yaml)
//  3. .env file (IDENTITY_ENV_FILE or ./.env), never overriding variables already set
//  4. IDENTITY_* environment variables
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. IDENTITY_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/identity/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/identity/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadDotEnv populates the process environment from a .env file. A missing
// default file is not an error; a missing explicit file is.
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides maps IDENTITY_* environment variables onto cfg. Fields
// without a matching variable keep their current value.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

// secretRef pairs a _file field with the value field it fills.
type secretRef struct {
	name  string
	file  string
	value *string
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
		{"auth.cookie.hash_key_file", cfg.Auth.Cookie.HashKeyFile, &cfg.Auth.Cookie.HashKey},
		{"auth.cookie.block_key_file", cfg.Auth.Cookie.BlockKeyFile, &cfg.Auth.Cookie.BlockKey},
		{"hasher.pbkdf2.seed_file", cfg.Hasher.PBKDF2.SeedFile, &cfg.Hasher.PBKDF2.Seed},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"storage.redis.password_file", cfg.Storage.Redis.PasswordFile, &cfg.Storage.Redis.Password},
	}
	for i := range cfg.Auth.APIKeys {
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), cfg.Auth.APIKeys[i].KeyFile, &cfg.Auth.APIKeys[i].Key})
	}
	for i := range cfg.Users {
		refs = append(refs, secretRef{fmt.Sprintf("users[%d].password_file", i), cfg.Users[i].PasswordFile, &cfg.Users[i].Password})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
