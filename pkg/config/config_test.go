package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/pkg/perrors"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	// bindEnv binds each key to this literal env var name (no PAYATTN_
	// prefix applied), so tests must set the unprefixed names.
	t.Setenv("RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("PROGRAM_ID", "11111111111111111111111111111111")
	t.Setenv("PLATFORM_KEYPAIR_PATH", "/tmp/platform.json")
	t.Setenv("PLATFORM_PUBKEY", "11111111111111111111111111111112")
}

func TestLoadSucceedsWithRequiredEnvSet(t *testing.T) {
	require := require.New(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(err)
	require.Equal("https://api.devnet.solana.com", cfg.RPCURL)
	require.Equal(5*time.Minute, cfg.RetryInterval)
	require.Equal("production", cfg.DatabaseMode)
	require.Equal(":8080", cfg.HTTPAddr)
}

func TestLoadFailsWithoutRequiredEnv(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsUnknownDatabaseMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_MODE", "staging")

	_, err := Load()
	require.ErrorIs(t, err, perrors.ErrInvalidConfig)
}

func TestValidateReportsMissingField(t *testing.T) {
	c := Config{ProgramID: "x", PlatformKeypairPath: "y", PlatformPubkey: "z", DatabaseMode: "test"}
	err := c.Validate()
	require.ErrorIs(t, err, perrors.ErrMissingConfig)
}

func TestRepositoryConfigCarriesModeThrough(t *testing.T) {
	require := require.New(t)
	c := Config{DatabaseMode: "test", DBHost: "db", DBPort: 5433, DBName: "payattn", DBUser: "u", DBPassword: "p", DBSSLMode: "require"}
	rc := c.RepositoryConfig()
	require.Equal("test", rc.Mode)
	require.Equal("db", rc.Host)
	require.Equal(5433, rc.Port)
}
