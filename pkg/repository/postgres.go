package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/perrors"
)

// DB wraps a pooled Postgres connection and owns schema creation. Every
// repository (offers, queue, creatives, sessions, parties) embeds it.
type DB struct {
	sql    *sql.DB
	cfg    Config
	suffix string
	log    log.Logger
}

// Open dials Postgres, applies the pool settings from cfg, verifies
// connectivity and creates the schema if it does not already exist.
func Open(ctx context.Context, cfg Config, logger log.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NoOp()
	}

	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, perrors.Wrap("opening postgres connection", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, perrors.Wrap("pinging postgres", err)
	}

	db := &DB{sql: sqlDB, cfg: cfg, suffix: cfg.tableSuffix(), log: logger}
	if err := db.initSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies the connection is still alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// table returns name with the configured test/production suffix applied.
func (db *DB) table(name string) string {
	return name + db.suffix
}

func (db *DB) initSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			offer_id TEXT PRIMARY KEY,
			advertiser_id TEXT NOT NULL,
			publisher_id TEXT NOT NULL,
			creative_id TEXT NOT NULL,
			user_pubkey TEXT NOT NULL,
			publisher_pubkey TEXT NOT NULL,
			platform_pubkey TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			settling BOOLEAN NOT NULL DEFAULT FALSE,
			escrow_address TEXT,
			escrow_bump SMALLINT,
			funding_tx_id TEXT,
			settled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, db.table("offers")),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status)`,
			db.table("offers_status_idx"), db.table("offers")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			offer_id TEXT NOT NULL,
			tx_type TEXT NOT NULL,
			recipient_pubkey TEXT NOT NULL,
			amount BIGINT NOT NULL DEFAULT 0,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 10,
			status TEXT NOT NULL DEFAULT 'pending',
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			success_tx_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (offer_id, tx_type)
		)`, db.table("retry_queue")),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status, next_attempt_at)`,
			db.table("retry_queue_due_idx"), db.table("retry_queue")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			creative_id TEXT PRIMARY KEY,
			advertiser_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			target_url TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, db.table("ad_creatives")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT PRIMARY KEY,
			offer_id TEXT NOT NULL,
			circuit_id TEXT NOT NULL,
			verified BOOLEAN NOT NULL,
			budget_ok BOOLEAN NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, db.table("assessment_sessions")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			party_id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			pubkey TEXT NOT NULL,
			display_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, db.table("parties")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			account_data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, db.table("escrow_accounts")),
	}

	for _, stmt := range stmts {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return perrors.Wrap("creating schema", err)
		}
	}
	return nil
}
