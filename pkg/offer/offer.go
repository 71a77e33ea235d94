// Package offer implements the offer lifecycle coordinator: the state
// machine an ad impression's payment negotiation moves through, from an
// advertiser's initial offer to a fully settled escrow.
package offer

import (
	"time"

	"github.com/payattn/payattn/core"
)

// Status is a point in the offer lifecycle state machine.
type Status string

const (
	StatusOfferMade Status = "offer_made"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusFunded    Status = "funded"
	StatusSettling  Status = "settling"
	StatusSettled   Status = "settled"
	StatusRefunded  Status = "refunded"
)

// validTransitions enumerates the only legal next statuses for each
// current status; CanTransition reports false for any other edge.
var validTransitions = map[Status][]Status{
	StatusOfferMade: {StatusAccepted, StatusRejected},
	StatusAccepted:  {StatusFunded},
	// StatusSettled is reachable directly from StatusFunded when the retry
	// worker closes out the last pending leg of a settlement the engine
	// already dropped back to funded (see pkg/retry.Worker.Tick).
	StatusFunded:   {StatusSettling, StatusRefunded, StatusSettled},
	StatusSettling: {StatusSettled, StatusFunded}, // a failed leg falls back to funded for retry
	StatusSettled:  {},
	StatusRejected: {},
	StatusRefunded: {},
}

// CanTransition reports whether moving from a to b is a legal state
// machine edge.
func CanTransition(a, b Status) bool {
	for _, next := range validTransitions[a] {
		if next == b {
			return true
		}
	}
	return false
}

// Offer is the coordinator's view of a single advertiser/publisher
// negotiation over one ad impression.
type Offer struct {
	OfferID         core.OfferID
	AdvertiserID    string
	PublisherID     string
	CreativeID      string
	UserPubkey      core.Pubkey
	PublisherPubkey core.Pubkey
	PlatformPubkey  core.Pubkey
	Amount          uint64

	Status   Status
	Settling bool // true while a settlement attempt is in flight, for the CAS guard

	EscrowAddress core.Pubkey
	EscrowBump    uint8

	FundingTxID string
	SettledAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
