package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/retry"
)

// QueueRepository persists retry.Entry rows, implementing retry.Store.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository builds a retry.Store backed by db.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Upsert inserts a new entry or, if one already exists for the same
// (offer_id, tx_type), resets it to pending so it is retried again.
func (r *QueueRepository) Upsert(ctx context.Context, e retry.Entry) error {
	q := `INSERT INTO ` + r.db.table("retry_queue") + `
		(offer_id, tx_type, recipient_pubkey, amount, attempts, max_attempts, status, next_attempt_at, last_error, success_tx_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (offer_id, tx_type) DO UPDATE SET
			recipient_pubkey = EXCLUDED.recipient_pubkey,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			next_attempt_at = EXCLUDED.next_attempt_at,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.sql.ExecContext(ctx, q,
		e.OfferID.String(), string(e.TxType), e.RecipientPubkey.String(), e.Amount, e.Attempts, e.MaxAttempts,
		string(e.Status), e.NextAttemptAt, e.LastError, e.SuccessTxID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return perrors.Wrap("upserting retry entry", err)
	}
	return nil
}

// DueEntries returns up to limit pending entries whose next_attempt_at has
// passed, oldest first.
func (r *QueueRepository) DueEntries(ctx context.Context, now time.Time, limit int) ([]retry.Entry, error) {
	q := `SELECT offer_id, tx_type, recipient_pubkey, amount, attempts, max_attempts, status, next_attempt_at, last_error, success_tx_id, created_at, updated_at
		FROM ` + r.db.table("retry_queue") + `
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3`
	rows, err := r.db.sql.QueryContext(ctx, q, string(retry.StatusPending), now, limit)
	if err != nil {
		return nil, perrors.Wrap("querying due retry entries", err)
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

// PendingForOffer returns every retry_queue row still pending for offerID,
// so the retry worker can tell whether all of an offer's settlement legs
// have landed before closing the offer out as settled.
func (r *QueueRepository) PendingForOffer(ctx context.Context, offerID core.OfferID) ([]retry.Entry, error) {
	q := `SELECT offer_id, tx_type, recipient_pubkey, amount, attempts, max_attempts, status, next_attempt_at, last_error, success_tx_id, created_at, updated_at
		FROM ` + r.db.table("retry_queue") + `
		WHERE offer_id = $1 AND status = $2`
	rows, err := r.db.sql.QueryContext(ctx, q, offerID.String(), string(retry.StatusPending))
	if err != nil {
		return nil, perrors.Wrap("querying pending retry entries for offer", err)
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

func scanQueueRows(rows *sql.Rows) ([]retry.Entry, error) {
	var out []retry.Entry
	for rows.Next() {
		var e retry.Entry
		var offerIDHex, txType, recipient, status string
		var lastErr, successTxID sql.NullString
		if err := rows.Scan(&offerIDHex, &txType, &recipient, &e.Amount, &e.Attempts, &e.MaxAttempts, &status,
			&e.NextAttemptAt, &lastErr, &successTxID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, perrors.Wrap("scanning retry entry", err)
		}
		offerID, err := core.OfferIDFromHex(offerIDHex)
		if err != nil {
			return nil, err
		}
		e.OfferID = offerID
		e.TxType = retry.TxType(txType)
		if e.RecipientPubkey, err = core.PubkeyFromBase58(recipient); err != nil {
			return nil, err
		}
		e.Status = retry.Status(status)
		e.LastError = lastErr.String
		e.SuccessTxID = successTxID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save persists an entry's current attempt count and status.
func (r *QueueRepository) Save(ctx context.Context, e retry.Entry) error {
	q := `UPDATE ` + r.db.table("retry_queue") + `
		SET attempts = $3, status = $4, next_attempt_at = $5, last_error = $6, success_tx_id = $7, updated_at = $8
		WHERE offer_id = $1 AND tx_type = $2`
	_, err := r.db.sql.ExecContext(ctx, q,
		e.OfferID.String(), string(e.TxType), e.Attempts, string(e.Status), e.NextAttemptAt, e.LastError, e.SuccessTxID, e.UpdatedAt)
	if err != nil {
		return perrors.Wrap("saving retry entry", err)
	}
	return nil
}
