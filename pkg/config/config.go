// Package config loads PayAttn's daemon configuration from environment
// variables via viper, the way LeJamon/goXRPLd loads xrpld's configuration
// from its TOML/env layers: defaults set first, then environment
// variables override them, then the result is validated as a whole.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/repository"
)

// Config is the full set of environment-driven settings a PayAttn daemon
// needs to run: chain access, the platform's own identity, retry/refund
// timing, and which database tables to use.
type Config struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ProgramID           string        `mapstructure:"program_id"`
	PlatformKeypairPath string        `mapstructure:"platform_keypair_path"`
	PlatformPubkey      string        `mapstructure:"platform_pubkey"`
	RetryInterval       time.Duration `mapstructure:"retry_interval"`
	MaxRetryAttempts    int           `mapstructure:"max_retry_attempts"`
	RefundTimeout       time.Duration `mapstructure:"refund_timeout"`
	DatabaseMode        string        `mapstructure:"database_mode"`

	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBSSLMode  string `mapstructure:"db_sslmode"`

	HTTPAddr string `mapstructure:"http_addr"`
}

// Load reads configuration from the process environment, applying
// defaults for everything that has one and failing closed on the
// settings that don't: RPC_URL, PROGRAM_ID, PLATFORM_KEYPAIR_PATH and
// PLATFORM_PUBKEY are all required, and a missing one is fatal rather
// than silently defaulted.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYATTN")
	v.AutomaticEnv()

	v.SetDefault("retry_interval", 5*time.Minute)
	v.SetDefault("max_retry_attempts", 10)
	v.SetDefault("refund_timeout", 72*time.Hour)
	v.SetDefault("database_mode", "production")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("http_addr", ":8080")

	bindEnv(v, "rpc_url", "RPC_URL")
	bindEnv(v, "program_id", "PROGRAM_ID")
	bindEnv(v, "platform_keypair_path", "PLATFORM_KEYPAIR_PATH")
	bindEnv(v, "platform_pubkey", "PLATFORM_PUBKEY")
	bindEnv(v, "retry_interval", "RETRY_INTERVAL")
	bindEnv(v, "max_retry_attempts", "MAX_RETRY_ATTEMPTS")
	bindEnv(v, "refund_timeout", "REFUND_TIMEOUT")
	bindEnv(v, "database_mode", "DATABASE_MODE")
	bindEnv(v, "db_host", "DB_HOST")
	bindEnv(v, "db_port", "DB_PORT")
	bindEnv(v, "db_name", "DB_NAME")
	bindEnv(v, "db_user", "DB_USER")
	bindEnv(v, "db_password", "DB_PASSWORD")
	bindEnv(v, "db_sslmode", "DB_SSLMODE")
	bindEnv(v, "http_addr", "HTTP_ADDR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

// Validate checks the required settings are present, returning a missing
// one wrapped in perrors.ErrMissingConfig (which one is unspecified when
// several are missing).
func (c Config) Validate() error {
	required := map[string]string{
		"RPC_URL":               c.RPCURL,
		"PROGRAM_ID":            c.ProgramID,
		"PLATFORM_KEYPAIR_PATH": c.PlatformKeypairPath,
		"PLATFORM_PUBKEY":       c.PlatformPubkey,
	}
	for name, val := range required {
		if val == "" {
			return perrors.Wrap(name, perrors.ErrMissingConfig)
		}
	}
	if c.DatabaseMode != "test" && c.DatabaseMode != "production" {
		return perrors.Wrap("DATABASE_MODE", perrors.ErrInvalidConfig)
	}
	return nil
}

// RepositoryConfig translates the environment-driven DB_* settings into a
// repository.Config, carrying DatabaseMode through as the table-suffix
// mode.
func (c Config) RepositoryConfig() repository.Config {
	rc := repository.DefaultConfig()
	rc.Host = c.DBHost
	rc.Port = c.DBPort
	rc.Database = c.DBName
	rc.Username = c.DBUser
	rc.Password = c.DBPassword
	rc.SSLMode = c.DBSSLMode
	rc.Mode = c.DatabaseMode
	return rc
}
