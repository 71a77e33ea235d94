package escrow

import (
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/perrors"
)

// Settlement split, in basis points of 10_000, applied to the escrowed
// amount. The platform's share absorbs whatever the other two legs rounded
// away, so the three legs always sum to exactly Amount.
const (
	userShareBps      = 7000
	publisherShareBps = 2500
	platformShareBps  = 500
)

// RefundTimeout is how long an escrow may sit unsettled before the
// advertiser can reclaim the funds via refund_escrow.
const RefundTimeout = 72 * time.Hour

// Program executes escrow instructions against a State. It holds no
// account data itself; every method is a pure function of (programID,
// state, inputs) so it can be reused by the simulator CLI, the offer
// coordinator and tests alike.
type Program struct {
	ProgramID core.Pubkey
	State     State
}

// NewProgram binds a Program to the given program id and backing state.
func NewProgram(programID core.Pubkey, state State) *Program {
	return &Program{ProgramID: programID, State: state}
}

// CreateEscrowParams are the inputs to CreateEscrow. The publisher is
// deliberately absent: an impression's publisher is decided at settlement
// time, not at creation.
type CreateEscrowParams struct {
	OfferID    core.OfferID
	Advertiser core.Pubkey
	User       core.Pubkey
	Platform   core.Pubkey
	Amount     uint64
}

// CreateEscrow allocates and funds a new escrow account at the offer's PDA.
func (p *Program) CreateEscrow(params CreateEscrowParams) (core.Pubkey, error) {
	if params.Amount == 0 {
		return core.Pubkey{}, perrors.ErrAmountZero
	}
	if len(params.OfferID) == 0 {
		return core.Pubkey{}, perrors.ErrOfferIDEmpty
	}
	if len(params.OfferID) > core.MaxOfferIDLen {
		return core.Pubkey{}, perrors.ErrOfferIDTooLong
	}

	addr, bump, err := DeriveEscrowAddress(p.ProgramID, params.OfferID)
	if err != nil {
		return core.Pubkey{}, err
	}

	if _, err := p.State.Get(addr); err == nil {
		return core.Pubkey{}, perrors.ErrOfferAlreadyAccepted
	}

	if bs, ok := p.State.(BalanceState); ok {
		balance, err := bs.Balance(params.Advertiser)
		if err != nil {
			return core.Pubkey{}, err
		}
		if balance < params.Amount {
			return core.Pubkey{}, perrors.ErrInsufficientAdvertiserFunds
		}
		if err := bs.Debit(params.Advertiser, params.Amount); err != nil {
			return core.Pubkey{}, err
		}
	}

	acct := &Account{
		OfferID:    params.OfferID,
		Advertiser: params.Advertiser,
		User:       params.User,
		Platform:   params.Platform,
		Amount:     params.Amount,
		CreatedAt:  time.Now().UTC(),
		Bump:       bump,
	}
	if err := p.State.Put(addr, acct); err != nil {
		return core.Pubkey{}, err
	}
	return addr, nil
}

// Split computes the three settlement legs for an escrowed amount. The
// platform leg absorbs the remainder so userLeg+publisherLeg+platformLeg
// always equals amount exactly.
func Split(amount uint64) (userLeg, publisherLeg, platformLeg uint64) {
	userLeg = amount * userShareBps / 10_000
	publisherLeg = amount * publisherShareBps / 10_000
	platformLeg = amount - userLeg - publisherLeg
	return
}

func (p *Program) load(addr core.Pubkey) (*Account, error) {
	acct, err := p.State.Get(addr)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// SettleUser pays the user's leg and marks it settled. The supplied user
// account must match escrow.user. Idempotent: calling it again after
// success returns ErrAlreadySettled, which callers use to treat a retried
// instruction as a no-op rather than a double payment. On success it
// returns a synthetic transaction id standing in for the landed
// transaction's signature.
func (p *Program) SettleUser(addr core.Pubkey, user core.Pubkey) (amount uint64, txID string, err error) {
	acct, err := p.load(addr)
	if err != nil {
		return 0, "", err
	}
	if user != acct.User {
		return 0, "", perrors.ErrUserKeyMismatch
	}
	if acct.SettledUser {
		return 0, "", perrors.ErrAlreadySettled
	}
	userLeg, _, _ := Split(acct.Amount)
	acct.SettledUser = true
	if err := p.State.Put(addr, acct); err != nil {
		return 0, "", err
	}
	return userLeg, core.NewTxID(), nil
}

// SettlePublisher pays the publisher's leg and marks it settled. The
// publisher identity is supplied here, at settlement time, since the
// escrow account never stores one: an impression binds its publisher,
// not the offer.
func (p *Program) SettlePublisher(addr core.Pubkey, publisher core.Pubkey) (amount uint64, txID string, err error) {
	acct, err := p.load(addr)
	if err != nil {
		return 0, "", err
	}
	if acct.SettledPublisher {
		return 0, "", perrors.ErrAlreadySettled
	}
	_, publisherLeg, _ := Split(acct.Amount)
	acct.SettledPublisher = true
	if err := p.State.Put(addr, acct); err != nil {
		return 0, "", err
	}
	return publisherLeg, core.NewTxID(), nil
}

// SettlePlatform pays the platform's leg and closes (deletes) the escrow
// account; no rent reserve is modelled, so nothing is returned to the
// advertiser. The supplied platform account must
// match escrow.platform. It requires both the user and publisher legs to
// have already settled; a real validator enforces this with an account
// constraint, which we reproduce as an explicit precondition check.
func (p *Program) SettlePlatform(addr core.Pubkey, platform core.Pubkey) (amount uint64, txID string, err error) {
	acct, err := p.load(addr)
	if err != nil {
		return 0, "", err
	}
	if platform != acct.Platform {
		return 0, "", perrors.ErrPlatformKeyMismatch
	}
	if acct.SettledPlatform {
		return 0, "", perrors.ErrAlreadySettled
	}
	if !acct.AllPrerequisitesSettled() {
		return 0, "", perrors.ErrPrerequisiteNotSettled
	}
	_, _, platformLeg := Split(acct.Amount)
	if err := p.State.Delete(addr); err != nil {
		return 0, "", err
	}
	return platformLeg, core.NewTxID(), nil
}

// RefundEscrow returns the full escrowed amount to the advertiser and
// closes the account. The signer must equal escrow.advertiser. Only
// permitted once RefundTimeout has elapsed since creation and only if no
// settlement leg has landed yet.
func (p *Program) RefundEscrow(addr core.Pubkey, advertiser core.Pubkey) (amount uint64, err error) {
	acct, err := p.load(addr)
	if err != nil {
		return 0, err
	}
	if advertiser != acct.Advertiser {
		return 0, perrors.ErrAdvertiserKeyMismatch
	}
	if acct.SettledUser || acct.SettledPublisher || acct.SettledPlatform {
		return 0, perrors.ErrNotRefundable
	}
	if time.Since(acct.CreatedAt) < RefundTimeout {
		return 0, perrors.ErrNotRefundable
	}
	if err := p.State.Delete(addr); err != nil {
		return 0, err
	}
	return acct.Amount, nil
}
