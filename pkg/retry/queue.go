// Package retry implements the durable retry queue for settlement legs
// that failed to land on-chain: a composite-key upsert store plus a
// per-tick worker that retries due entries with backoff.
package retry

import (
	"time"

	"github.com/payattn/payattn/core"
)

// TxType names which settlement leg a queue entry is retrying.
type TxType string

const (
	TxUserSettlement      TxType = "settle_user"
	TxPublisherSettlement TxType = "settle_publisher"
	TxPlatformSettlement  TxType = "settle_platform"
)

// Status is the lifecycle of a single retry entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed" // terminal: max attempts exhausted
)

// DefaultMaxAttempts is how many times a leg is retried before the entry is
// marked failed and surfaced for manual intervention.
const DefaultMaxAttempts = 10

// DefaultBackoff is the minimum wait between attempts for a given entry.
const DefaultBackoff = 5 * time.Minute

// Entry is one (offer, tx_type) unit of retriable work. The composite key
// means re-queuing the same leg for the same offer updates the existing
// row instead of creating a duplicate. RecipientPubkey carries the account
// that leg's instruction must pay and validate against (the user, the
// publisher chosen at settlement time, or the platform); Amount is that
// leg's pre-computed share of the escrow.
type Entry struct {
	OfferID         core.OfferID
	TxType          TxType
	RecipientPubkey core.Pubkey
	Amount          uint64
	Attempts        int
	MaxAttempts     int
	Status          Status
	NextAttemptAt   time.Time
	LastError       string
	SuccessTxID     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewEntry creates a pending entry ready for its first attempt.
func NewEntry(offerID core.OfferID, txType TxType, recipient core.Pubkey, amount uint64) Entry {
	now := time.Now().UTC()
	return Entry{
		OfferID:         offerID,
		TxType:          txType,
		RecipientPubkey: recipient,
		Amount:          amount,
		MaxAttempts:     DefaultMaxAttempts,
		Status:          StatusPending,
		NextAttemptAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Due reports whether the entry is eligible for another attempt right now.
func (e Entry) Due(now time.Time) bool {
	return e.Status == StatusPending && !e.NextAttemptAt.After(now)
}

// Exhausted reports whether the entry has used up its attempt budget.
func (e Entry) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// RecordFailure advances the entry after a failed attempt: increments the
// attempt counter, schedules the next attempt after the backoff window,
// and flips to the terminal failed state once attempts are exhausted.
func (e Entry) RecordFailure(backoff time.Duration, reason string) Entry {
	e.Attempts++
	e.LastError = reason
	e.UpdatedAt = time.Now().UTC()
	if e.Exhausted() {
		e.Status = StatusFailed
		return e
	}
	e.NextAttemptAt = e.UpdatedAt.Add(backoff)
	return e
}

// RecordSuccess marks the entry done, recording txID as the leg's landed
// transaction signature.
func (e Entry) RecordSuccess(txID string) Entry {
	e.Status = StatusDone
	e.SuccessTxID = txID
	e.UpdatedAt = time.Now().UTC()
	return e
}
