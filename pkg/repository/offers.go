package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/offer"
	"github.com/payattn/payattn/pkg/perrors"
)

// OfferRepository persists offer.Offer rows and guards status transitions
// with a compare-and-swap update so two concurrent callers (the HTTP API
// and the retry worker) can never both "win" a transition.
type OfferRepository struct {
	db *DB
}

// NewOfferRepository builds an offer repository backed by db.
func NewOfferRepository(db *DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create inserts a new offer row in StatusOfferMade.
func (r *OfferRepository) Create(ctx context.Context, o *offer.Offer) error {
	q := `INSERT INTO ` + r.db.table("offers") + `
		(offer_id, advertiser_id, publisher_id, creative_id, user_pubkey, publisher_pubkey, platform_pubkey,
		 amount, status, settling, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.db.sql.ExecContext(ctx, q,
		o.OfferID.String(), o.AdvertiserID, o.PublisherID, o.CreativeID,
		o.UserPubkey.String(), o.PublisherPubkey.String(), o.PlatformPubkey.String(),
		o.Amount, string(o.Status), o.Settling, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return perrors.Wrap("creating offer", err)
	}
	return nil
}

// Get loads an offer by id.
func (r *OfferRepository) Get(ctx context.Context, offerID core.OfferID) (*offer.Offer, error) {
	q := `SELECT offer_id, advertiser_id, publisher_id, creative_id, user_pubkey, publisher_pubkey, platform_pubkey,
		amount, status, settling, escrow_address, escrow_bump, funding_tx_id, settled_at, created_at, updated_at
		FROM ` + r.db.table("offers") + ` WHERE offer_id = $1`
	row := r.db.sql.QueryRowContext(ctx, q, offerID.String())
	return scanOffer(row)
}

func scanOffer(row *sql.Row) (*offer.Offer, error) {
	var o offer.Offer
	var offerIDHex, userPub, pubPub, platPub, status string
	var escrowAddr, fundingTxID sql.NullString
	var escrowBump sql.NullInt16
	var settledAt sql.NullTime

	err := row.Scan(&offerIDHex, &o.AdvertiserID, &o.PublisherID, &o.CreativeID,
		&userPub, &pubPub, &platPub, &o.Amount, &status, &o.Settling,
		&escrowAddr, &escrowBump, &fundingTxID, &settledAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, perrors.ErrOfferNotFound
	}
	if err != nil {
		return nil, perrors.Wrap("scanning offer", err)
	}

	offerID, err := core.OfferIDFromHex(offerIDHex)
	if err != nil {
		return nil, err
	}
	o.OfferID = offerID
	o.Status = offer.Status(status)

	if o.UserPubkey, err = core.PubkeyFromBase58(userPub); err != nil {
		return nil, err
	}
	if o.PublisherPubkey, err = core.PubkeyFromBase58(pubPub); err != nil {
		return nil, err
	}
	if o.PlatformPubkey, err = core.PubkeyFromBase58(platPub); err != nil {
		return nil, err
	}
	if escrowAddr.Valid {
		if o.EscrowAddress, err = core.PubkeyFromBase58(escrowAddr.String); err != nil {
			return nil, err
		}
	}
	if escrowBump.Valid {
		o.EscrowBump = uint8(escrowBump.Int16)
	}
	if fundingTxID.Valid {
		o.FundingTxID = fundingTxID.String
	}
	if settledAt.Valid {
		t := settledAt.Time
		o.SettledAt = &t
	}
	return &o, nil
}

// CASUpdateStatus transitions an offer from (expectStatus, expectSettling)
// to (newStatus, newSettling) only if the row is still in the expected
// state, returning perrors.ErrCASConflict if another writer moved it first.
func (r *OfferRepository) CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus offer.Status, expectSettling bool, newStatus offer.Status, newSettling bool) error {
	q := `UPDATE ` + r.db.table("offers") + `
		SET status = $1, settling = $2, updated_at = now()
		WHERE offer_id = $3 AND status = $4 AND settling = $5`
	res, err := r.db.sql.ExecContext(ctx, q, string(newStatus), newSettling, offerID.String(), string(expectStatus), expectSettling)
	if err != nil {
		return perrors.Wrap("updating offer status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return perrors.Wrap("checking rows affected", err)
	}
	if n == 0 {
		return perrors.ErrCASConflict
	}
	return nil
}

// SetEscrowAddress records the derived PDA once an escrow account is
// created for the offer.
func (r *OfferRepository) SetEscrowAddress(ctx context.Context, offerID core.OfferID, addr core.Pubkey, bump uint8) error {
	q := `UPDATE ` + r.db.table("offers") + `
		SET escrow_address = $1, escrow_bump = $2, updated_at = now()
		WHERE offer_id = $3`
	_, err := r.db.sql.ExecContext(ctx, q, addr.String(), bump, offerID.String())
	if err != nil {
		return perrors.Wrap("setting escrow address", err)
	}
	return nil
}

// SetFundingTxID records the advertiser's funding transaction once
// verify_payment confirms it against the escrow account.
func (r *OfferRepository) SetFundingTxID(ctx context.Context, offerID core.OfferID, txID string) error {
	q := `UPDATE ` + r.db.table("offers") + `
		SET funding_tx_id = $1, updated_at = now()
		WHERE offer_id = $2`
	_, err := r.db.sql.ExecContext(ctx, q, txID, offerID.String())
	if err != nil {
		return perrors.Wrap("setting funding tx id", err)
	}
	return nil
}

// SetSettledAt records when an offer's three settlement legs all landed.
func (r *OfferRepository) SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error {
	q := `UPDATE ` + r.db.table("offers") + `
		SET settled_at = $1, updated_at = now()
		WHERE offer_id = $2`
	_, err := r.db.sql.ExecContext(ctx, q, settledAt, offerID.String())
	if err != nil {
		return perrors.Wrap("setting settled_at", err)
	}
	return nil
}
