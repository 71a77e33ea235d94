package repository

import (
	"context"
	"database/sql"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/perrors"
)

// EscrowState is a Postgres-backed escrow.State, storing each account as
// its raw serialized bytes (the same MarshalBinary layout the simulator
// and tests use) keyed by PDA, so the daemon and the worker process see a
// consistent view of every escrow account.
type EscrowState struct {
	db *DB
}

// NewEscrowState builds an escrow.State backed by db.
func NewEscrowState(db *DB) *EscrowState {
	return &EscrowState{db: db}
}

var _ escrow.State = (*EscrowState)(nil)

func (s *EscrowState) Get(addr core.Pubkey) (*escrow.Account, error) {
	ctx := context.Background()
	q := `SELECT account_data FROM ` + s.db.table("escrow_accounts") + ` WHERE address = $1`
	var data []byte
	err := s.db.sql.QueryRowContext(ctx, q, addr.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, perrors.ErrEscrowNotFound
	}
	if err != nil {
		return nil, perrors.Wrap("loading escrow account", err)
	}
	var acct escrow.Account
	if err := acct.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *EscrowState) Put(addr core.Pubkey, acct *escrow.Account) error {
	ctx := context.Background()
	data, err := acct.MarshalBinary()
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + s.db.table("escrow_accounts") + ` (address, account_data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (address) DO UPDATE SET account_data = EXCLUDED.account_data, updated_at = now()`
	if _, err := s.db.sql.ExecContext(ctx, q, addr.String(), data); err != nil {
		return perrors.Wrap("saving escrow account", err)
	}
	return nil
}

func (s *EscrowState) Delete(addr core.Pubkey) error {
	ctx := context.Background()
	q := `DELETE FROM ` + s.db.table("escrow_accounts") + ` WHERE address = $1`
	if _, err := s.db.sql.ExecContext(ctx, q, addr.String()); err != nil {
		return perrors.Wrap("deleting escrow account", err)
	}
	return nil
}
