package postgres

import "time"

// Config holds the user store's connection settings.
type Config struct {
	// DSN is a libpq connection string or URL,
	// e.g. "postgres://identity:secret@db:5432/identity?sslmode=require".
	DSN string

	// MaxConns caps the pool. Default: 10.
	MaxConns int32

	// MinConns idle connections are kept open. Default: 2.
	MinConns int32

	// MaxConnLifetime recycles connections. Default: 5 minutes.
	MaxConnLifetime time.Duration

	// ConnectTimeout bounds the initial ping. Default: 10 seconds.
	ConnectTimeout time.Duration

	// MigrateOnStart creates or upgrades the users table in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = min(2, c.MaxConns)
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}
