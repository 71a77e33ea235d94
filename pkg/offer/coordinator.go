package offer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/oracle"
	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/x402"
)

// Store is the persistence contract the coordinator needs from the offer
// repository: CRUD plus the CAS transition guard.
type Store interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, offerID core.OfferID) (*Offer, error)
	CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus Status, expectSettling bool, newStatus Status, newSettling bool) error
	SetEscrowAddress(ctx context.Context, offerID core.OfferID, addr core.Pubkey, bump uint8) error
	SetFundingTxID(ctx context.Context, offerID core.OfferID, txID string) error
	SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error
}

// SessionRecord is one persisted policy-oracle assessment, recorded for
// audit purposes independent of the offer's own lifecycle state.
type SessionRecord struct {
	SessionID string
	OfferID   string
	CircuitID string
	Verified  bool
	BudgetOK  bool
	Reason    string
	CreatedAt time.Time
}

// SessionStore persists SessionRecords. A nil SessionStore is valid:
// assessments simply aren't archived.
type SessionStore interface {
	Create(ctx context.Context, rec *SessionRecord) error
}

// SubmitRequest carries the fields an advertiser supplies to submit_offer.
type SubmitRequest struct {
	AdvertiserID string
	PublisherID  string
	CreativeID   string
	UserPubkey   core.Pubkey
	Amount       uint64
}

// Coordinator drives the offer lifecycle state machine: submitting an
// offer, accepting it and issuing the x402 payment handshake, verifying
// the resulting on-chain escrow, and routing assessment requests to the
// policy oracle.
type Coordinator struct {
	store     Store
	sessions  SessionStore
	program   *escrow.Program
	oracle    oracle.PolicyOracle
	platform  core.Pubkey
	verifyURL string
	log       log.Logger
}

// NewCoordinator builds a Coordinator. platform is the platform's own
// pubkey, attached to every offer and escrow account created; verifyURL is
// the endpoint advertised in the x402 handshake's verification-endpoint
// header. sessions may be nil, in which case assessments are not archived.
func NewCoordinator(store Store, sessions SessionStore, program *escrow.Program, policyOracle oracle.PolicyOracle, platform core.Pubkey, verifyURL string, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Coordinator{store: store, sessions: sessions, program: program, oracle: policyOracle, platform: platform, verifyURL: verifyURL, log: logger}
}

// SubmitOffer creates a new offer in StatusOfferMade.
func (c *Coordinator) SubmitOffer(ctx context.Context, req SubmitRequest) (*Offer, error) {
	if req.Amount == 0 {
		return nil, perrors.ErrAmountZero
	}
	now := time.Now().UTC()
	o := &Offer{
		OfferID:        core.GenerateOfferID(),
		AdvertiserID:   req.AdvertiserID,
		PublisherID:    req.PublisherID,
		CreativeID:     req.CreativeID,
		UserPubkey:     req.UserPubkey,
		PlatformPubkey: c.platform,
		Amount:         req.Amount,
		Status:         StatusOfferMade,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// AcceptOffer moves an offer_made offer to accepted, creates its escrow
// account and returns the x402 PaymentRequirements the caller advertises
// with HTTP 402. Calling it again on an already-accepted offer is
// idempotent: it re-derives and returns the same headers without mutating
// anything or touching the escrow program a second time. Any other status
// (rejected, funded, settling, ...) cannot accept and returns
// ErrOfferNotAccepted.
func (c *Coordinator) AcceptOffer(ctx context.Context, offerID core.OfferID) (x402.PaymentRequirements, error) {
	o, err := c.store.Get(ctx, offerID)
	if err != nil {
		return x402.PaymentRequirements{}, err
	}

	switch o.Status {
	case StatusAccepted:
		return x402.BuildRequirements(offerID, o.UserPubkey, c.platform, c.program.ProgramID, o.EscrowAddress, o.Amount, core.NetworkMainnet, c.verifyURL), nil
	case StatusOfferMade:
		// falls through to the mutating path below
	default:
		return x402.PaymentRequirements{}, perrors.ErrOfferNotAccepted
	}

	if err := c.store.CASUpdateStatus(ctx, offerID, StatusOfferMade, false, StatusAccepted, false); err != nil {
		return x402.PaymentRequirements{}, err
	}

	advertiser, err := core.PubkeyFromBase58(o.AdvertiserID)
	if err != nil {
		// AdvertiserID is an off-chain identifier, not always a pubkey; the
		// escrow's advertiser field still needs one to hold the refund
		// right, so a caller that wants refunds must submit a pubkey-shaped
		// advertiser id.
		return x402.PaymentRequirements{}, perrors.Wrap("advertiser id is not a valid pubkey", err)
	}

	_, bump, err := escrow.DeriveEscrowAddress(c.program.ProgramID, offerID)
	if err != nil {
		return x402.PaymentRequirements{}, err
	}
	addr, err := c.program.CreateEscrow(escrow.CreateEscrowParams{
		OfferID:    offerID,
		Advertiser: advertiser,
		User:       o.UserPubkey,
		Platform:   c.platform,
		Amount:     o.Amount,
	})
	if err != nil {
		return x402.PaymentRequirements{}, err
	}
	if err := c.store.SetEscrowAddress(ctx, offerID, addr, bump); err != nil {
		return x402.PaymentRequirements{}, err
	}

	return x402.BuildRequirements(offerID, o.UserPubkey, c.platform, c.program.ProgramID, addr, o.Amount, core.NetworkMainnet, c.verifyURL), nil
}

// VerifyPayment validates the escrow account the advertiser funded and
// moves the offer from accepted to funded, recording txID as the offer's
// funding_tx_id. It checks that escrowAddress is the correct derivation
// for offerID and that the escrow account it names carries the expected
// amount, user and advertiser. txID is recorded as given: the transaction
// itself is not looked up or checked for success. Calling it again on an
// already-funded offer is idempotent and succeeds as a no-op, matching the
// existing funding_tx_id.
func (c *Coordinator) VerifyPayment(ctx context.Context, offerID core.OfferID, txID string, escrowAddress core.Pubkey) (*Offer, error) {
	o, err := c.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusFunded {
		return o, nil
	}
	if o.Status != StatusAccepted {
		return nil, perrors.ErrOfferNotAccepted
	}

	wantAddr, _, err := escrow.DeriveEscrowAddress(c.program.ProgramID, offerID)
	if err != nil {
		return nil, err
	}
	if escrowAddress != wantAddr {
		return nil, perrors.ErrPDAMismatch
	}

	acct, err := c.program.State.Get(escrowAddress)
	if err != nil {
		return nil, perrors.ErrOfferNotFunded
	}
	if acct.Amount != o.Amount {
		return nil, perrors.ErrAmountMismatch
	}
	if acct.User != o.UserPubkey {
		return nil, perrors.ErrUserKeyMismatch
	}
	advertiser, err := core.PubkeyFromBase58(o.AdvertiserID)
	if err != nil {
		return nil, perrors.Wrap("advertiser id is not a valid pubkey", err)
	}
	if acct.Advertiser != advertiser {
		return nil, perrors.ErrAdvertiserKeyMismatch
	}

	if err := c.store.CASUpdateStatus(ctx, offerID, StatusAccepted, false, StatusFunded, false); err != nil {
		return nil, err
	}
	if err := c.store.SetFundingTxID(ctx, offerID, txID); err != nil {
		return nil, err
	}
	o.Status = StatusFunded
	o.FundingTxID = txID
	return o, nil
}

// AssessSingle runs one offer through the configured policy oracle and
// archives the verdict as a SessionRecord.
func (c *Coordinator) AssessSingle(ctx context.Context, req oracle.Request) (oracle.Assessment, error) {
	a, err := c.oracle.AssessSingle(ctx, req)
	if err != nil {
		return oracle.Assessment{}, err
	}
	c.recordSession(ctx, req, a)
	return a, nil
}

// AssessBatch runs a batch of offers through the configured policy oracle,
// archiving a SessionRecord per offer.
func (c *Coordinator) AssessBatch(ctx context.Context, reqs []oracle.Request) ([]oracle.Assessment, error) {
	results, err := c.oracle.AssessBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	for i, req := range reqs {
		c.recordSession(ctx, req, results[i])
	}
	return results, nil
}

func (c *Coordinator) recordSession(ctx context.Context, req oracle.Request, a oracle.Assessment) {
	if c.sessions == nil {
		return
	}
	rec := &SessionRecord{
		SessionID: uuid.NewString(),
		OfferID:   req.OfferID.String(),
		CircuitID: string(req.CircuitID),
		Verified:  a.ProofOK,
		BudgetOK:  a.BudgetOK,
		Reason:    a.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.sessions.Create(ctx, rec); err != nil {
		c.log.Warn("failed to archive assessment session", "offer_id", rec.OfferID, "error", err)
	}
}
