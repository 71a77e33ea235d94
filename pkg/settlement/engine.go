// Package settlement implements PayAttn's privacy-preserving settlement
// protocol: once an impression is confirmed, the three payment legs (user
// rebate, publisher payout, platform fee) are submitted as independent
// on-chain transactions in a randomly permuted order, each after an
// independent random delay, so an observer watching the chain cannot link
// the three transfers back to one impression by their ordering or timing.
package settlement

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/metric"
	"github.com/payattn/payattn/pkg/offer"
	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/retry"
)

// MaxLegDelay bounds the random per-leg delay inserted before a settlement
// transaction is submitted.
const MaxLegDelay = 5 * time.Second

// leg is one of the three settlement transactions for an offer.
type leg struct {
	txType    retry.TxType
	recipient core.Pubkey
	submit    func(addr, recipient core.Pubkey) (amount uint64, txID string, err error)
}

// LegResult reports the outcome of one of the three settlement legs.
type LegResult struct {
	TxType  retry.TxType
	Success bool
	TxID    string
	Err     error
}

// OfferStore is the narrow slice of the offer store the engine needs to
// drive the offer's Status/Settling fields in lockstep with the three-leg
// settlement attempt.
type OfferStore interface {
	CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus offer.Status, expectSettling bool, newStatus offer.Status, newSettling bool) error
	SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error
}

// Engine drives the three-leg settlement protocol for funded offers.
type Engine struct {
	program  *escrow.Program
	queue    retry.Store
	offers   OfferStore
	metrics  *metric.Metrics
	log      log.Logger
	rand     *rand.Rand
	platform core.Pubkey // the platform account every settle_platform leg pays
}

// NewEngine builds a settlement engine over the given escrow program and
// retry queue. platform is the platform account settle_platform legs pay,
// held by the engine rather than passed per-offer since it is fixed
// configuration. metrics and logger may be nil.
func NewEngine(program *escrow.Program, queue retry.Store, offers OfferStore, platform core.Pubkey, metrics *metric.Metrics, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Engine{
		program:  program,
		queue:    queue,
		offers:   offers,
		metrics:  metrics,
		log:      logger,
		platform: platform,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProgramID returns the escrow program this engine settles against, so
// callers can derive an offer's escrow address without holding their own
// reference to the program.
func (e *Engine) ProgramID() core.Pubkey {
	return e.program.ProgramID
}

// Settle dispatches all three legs for the escrow at addr in a randomly
// permuted order with independent random delays, as three separate
// goroutines so the caller observes only their completion, never their
// relative timing. A leg that fails is queued for retry rather than
// failing the whole settlement. userPubkey and publisherPubkey are the
// accounts this impression's user rebate and publisher payout land on; the
// platform account comes from the engine's own configuration.
//
// Settle guards the whole three-leg attempt with the offer's settling flag:
// it CASes funded(settling=false)->funded(settling=true) before dispatch
// and, once every leg has resolved, CASes funded(settling=true) to
// settled(settling=false) (all three succeeded, recording settled_at) or
// back to funded(settling=false) (at least one failed, leaving the failed
// legs queued for the retry worker to close out later). The offer's status
// stays funded while the legs are in flight; StatusSettling is not used. A concurrent settlement attempt on the same offer is rejected
// with ErrCASConflict rather than double-dispatching the legs.
func (e *Engine) Settle(ctx context.Context, offerID core.OfferID, addr core.Pubkey, userPubkey, publisherPubkey core.Pubkey) ([]LegResult, error) {
	if err := e.offers.CASUpdateStatus(ctx, offerID, offer.StatusFunded, false, offer.StatusFunded, true); err != nil {
		return nil, err
	}

	legs := []leg{
		{txType: retry.TxUserSettlement, recipient: userPubkey, submit: e.program.SettleUser},
		{txType: retry.TxPublisherSettlement, recipient: publisherPubkey, submit: e.program.SettlePublisher},
		{txType: retry.TxPlatformSettlement, recipient: e.platform, submit: e.program.SettlePlatform},
	}
	e.permute(legs)

	results := make(chan LegResult, len(legs))

	for _, l := range legs {
		l := l
		delay := time.Duration(e.rand.Int63n(int64(MaxLegDelay) + 1))
		go func() {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				results <- LegResult{TxType: l.txType, Err: ctx.Err()}
				return
			}
			results <- e.submitLeg(ctx, offerID, addr, l)
		}()
	}

	out := make([]LegResult, 0, len(legs))
	allSucceeded := true
	for range legs {
		r := <-results
		out = append(out, r)
		if !r.Success {
			allSucceeded = false
		}
	}

	if allSucceeded {
		if err := e.offers.CASUpdateStatus(ctx, offerID, offer.StatusFunded, true, offer.StatusSettled, false); err != nil {
			e.log.Error("failed to transition settled offer", "offer_id", offerID.String(), "error", err)
		} else if err := e.offers.SetSettledAt(ctx, offerID, time.Now().UTC()); err != nil {
			e.log.Error("failed to record settled_at", "offer_id", offerID.String(), "error", err)
		}
	} else if err := e.offers.CASUpdateStatus(ctx, offerID, offer.StatusFunded, true, offer.StatusFunded, false); err != nil {
		e.log.Error("failed to revert offer to funded after partial settlement failure", "offer_id", offerID.String(), "error", err)
	}

	var firstErr error
	for _, r := range out {
		if r.Err != nil && firstErr == nil {
			firstErr = r.Err
		}
	}
	return out, firstErr
}

// submitLeg executes one leg against the escrow program, recording metrics
// and queuing a retry entry on failure (unless the leg had already
// settled, which is treated as success for idempotency).
func (e *Engine) submitLeg(ctx context.Context, offerID core.OfferID, addr core.Pubkey, l leg) LegResult {
	start := time.Now()
	amount, txID, err := l.submit(addr, l.recipient)
	if e.metrics != nil {
		e.metrics.SettlementLegLatency.Observe(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		e.observe(l.txType, "ok")
		return LegResult{TxType: l.txType, Success: true, TxID: txID}
	case errors.Is(err, perrors.ErrAlreadySettled):
		e.observe(l.txType, "already_settled")
		return LegResult{TxType: l.txType, Success: true}
	default:
		e.observe(l.txType, "failed")
		if e.metrics != nil {
			e.metrics.SettlementFailures.WithLabelValues(err.Error()).Inc()
		}
		// a failed instruction reports no amount, so the leg's share is
		// recomputed from the escrow account for the queue entry
		if acct, gErr := e.program.State.Get(addr); gErr == nil {
			userLeg, publisherLeg, platformLeg := escrow.Split(acct.Amount)
			switch l.txType {
			case retry.TxUserSettlement:
				amount = userLeg
			case retry.TxPublisherSettlement:
				amount = publisherLeg
			case retry.TxPlatformSettlement:
				amount = platformLeg
			}
		}
		entry := retry.NewEntry(offerID, l.txType, l.recipient, amount)
		if qErr := e.queue.Upsert(ctx, entry); qErr != nil {
			e.log.Error("failed to queue settlement leg for retry",
				"offer_id", offerID.String(), "tx_type", string(l.txType), "error", qErr)
		}
		return LegResult{TxType: l.txType, Err: err}
	}
}

func (e *Engine) observe(txType retry.TxType, result string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SettlementLegsSent.WithLabelValues(string(txType), result).Inc()
}

// Attempt retries a single queued leg for offerID, implementing
// retry.Settler. It recomputes the escrow PDA rather than trusting a
// cached address, so a retry is safe even if the coordinator restarted. On
// success it returns the landed transaction's id.
func (e *Engine) Attempt(ctx context.Context, entry retry.Entry) (string, error) {
	addr, _, err := escrow.DeriveEscrowAddress(e.program.ProgramID, entry.OfferID)
	if err != nil {
		return "", err
	}

	var submit func(addr, recipient core.Pubkey) (uint64, string, error)
	switch entry.TxType {
	case retry.TxUserSettlement:
		submit = e.program.SettleUser
	case retry.TxPublisherSettlement:
		submit = e.program.SettlePublisher
	case retry.TxPlatformSettlement:
		submit = e.program.SettlePlatform
	default:
		return "", errors.New("settlement: unknown retry tx type")
	}

	_, txID, err := submit(addr, entry.RecipientPubkey)
	if err == nil || errors.Is(err, perrors.ErrAlreadySettled) {
		e.observe(entry.TxType, "retry_ok")
		return txID, nil
	}
	e.observe(entry.TxType, "retry_failed")
	return "", err
}

// permute shuffles legs in place using Fisher-Yates, so the on-chain
// submission order carries no information linking the three transfers.
func (e *Engine) permute(legs []leg) {
	for i := len(legs) - 1; i > 0; i-- {
		j := e.rand.Intn(i + 1)
		legs[i], legs[j] = legs[j], legs[i]
	}
}
