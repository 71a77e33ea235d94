// Package repository is the Postgres-backed persistence layer for offers,
// the durable retry queue, ad creatives, policy-assessment sessions and
// the party directory. Schema is created in code at startup rather than
// via a separate migration tool.
package repository

import (
	"fmt"
	"time"

	"github.com/payattn/payattn/pkg/perrors"
)

// Config describes how to reach and pool connections to Postgres.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Mode selects the table-name suffix: "test" tables are truncated
	// freely by integration tests, "production" tables are not.
	Mode string
}

// DefaultConfig returns sane pool defaults; callers still must fill in the
// connection fields.
func DefaultConfig() Config {
	return Config{
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Mode:            "production",
	}
}

// Validate checks that the configuration is complete enough to dial
// Postgres, returning a perrors sentinel on the first problem found.
func (c Config) Validate() error {
	if c.Host == "" {
		return perrors.Wrap("host", perrors.ErrMissingConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return perrors.Wrap("port", perrors.ErrInvalidConfig)
	}
	if c.Database == "" {
		return perrors.Wrap("database", perrors.ErrMissingConfig)
	}
	if c.Mode != "test" && c.Mode != "production" {
		return perrors.Wrap("mode", perrors.ErrInvalidConfig)
	}
	return nil
}

// ConnectionString builds a lib/pq connection string from the config.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// tableSuffix returns "_test" in test mode and "" otherwise, applied to
// every table name so integration tests never touch production rows.
func (c Config) tableSuffix() string {
	if c.Mode == "test" {
		return "_test"
	}
	return ""
}
