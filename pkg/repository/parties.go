package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/perrors"
)

// PartyRole distinguishes the three roles that ever appear on an offer.
type PartyRole string

const (
	RoleAdvertiser PartyRole = "advertiser"
	RolePublisher  PartyRole = "publisher"
	RolePlatform   PartyRole = "platform"
)

// Party is a directory entry binding a logical participant id to the
// on-chain public key that receives or sends its settlement leg.
type Party struct {
	PartyID     string
	Role        PartyRole
	Pubkey      core.Pubkey
	DisplayName string
	CreatedAt   time.Time
}

// PartyRepository persists the party directory.
type PartyRepository struct {
	db *DB
}

// NewPartyRepository builds a party repository backed by db.
func NewPartyRepository(db *DB) *PartyRepository {
	return &PartyRepository{db: db}
}

// Create inserts a new party.
func (r *PartyRepository) Create(ctx context.Context, p *Party) error {
	q := `INSERT INTO ` + r.db.table("parties") + `
		(party_id, role, pubkey, display_name, created_at)
		VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.sql.ExecContext(ctx, q, p.PartyID, string(p.Role), p.Pubkey.String(), p.DisplayName, p.CreatedAt)
	if err != nil {
		return perrors.Wrap("creating party", err)
	}
	return nil
}

// Get loads a party by id.
func (r *PartyRepository) Get(ctx context.Context, partyID string) (*Party, error) {
	q := `SELECT party_id, role, pubkey, display_name, created_at
		FROM ` + r.db.table("parties") + ` WHERE party_id = $1`
	var p Party
	var role, pubkey string
	err := r.db.sql.QueryRowContext(ctx, q, partyID).Scan(&p.PartyID, &role, &pubkey, &p.DisplayName, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, perrors.ErrPartyNotFound
	}
	if err != nil {
		return nil, perrors.Wrap("scanning party", err)
	}
	p.Role = PartyRole(role)
	if p.Pubkey, err = core.PubkeyFromBase58(pubkey); err != nil {
		return nil, err
	}
	return &p, nil
}
