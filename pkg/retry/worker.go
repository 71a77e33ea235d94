package retry

import (
	"context"
	"errors"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/metric"
	"github.com/payattn/payattn/pkg/offer"
	"github.com/payattn/payattn/pkg/perrors"
)

// Store persists retry entries keyed by (offer id, tx type).
type Store interface {
	// Upsert inserts a new entry or updates the existing one sharing the
	// same (OfferID, TxType) key.
	Upsert(ctx context.Context, e Entry) error
	// DueEntries returns up to limit pending entries whose NextAttemptAt
	// has passed.
	DueEntries(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	// Save persists an entry's updated attempt/status fields.
	Save(ctx context.Context, e Entry) error
	// PendingForOffer returns the still-pending entries for offerID, used to
	// decide whether a leg the worker just closed out was the last one
	// standing between the offer and settled.
	PendingForOffer(ctx context.Context, offerID core.OfferID) ([]Entry, error)
}

// Settler performs one retry attempt for a queue entry. Implementations
// must themselves check on-chain settlement state first and treat an
// already-settled leg as success, so a retried instruction is idempotent.
// On success it returns the landed transaction's id.
type Settler interface {
	Attempt(ctx context.Context, e Entry) (txID string, err error)
}

// OfferStore is the narrow slice of the offer store the worker needs to
// close an offer out once every one of its settlement legs has landed.
type OfferStore interface {
	CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus offer.Status, expectSettling bool, newStatus offer.Status, newSettling bool) error
	SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error
}

// Worker drains due entries from a Store on a fixed interval, attempting
// each through a Settler and re-queuing failures with backoff.
type Worker struct {
	store   Store
	settler Settler
	offers  OfferStore
	metrics *metric.Metrics
	log     log.Logger
	backoff time.Duration
	batch   int
}

// NewWorker builds a retry worker. metrics and logger may be nil, in which
// case metrics are skipped and logging is a no-op.
func NewWorker(store Store, settler Settler, offers OfferStore, metrics *metric.Metrics, logger log.Logger) *Worker {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Worker{
		store:   store,
		settler: settler,
		offers:  offers,
		metrics: metrics,
		log:     logger,
		backoff: DefaultBackoff,
		batch:   50,
	}
}

// WithBackoff overrides the default backoff window, mainly for tests that
// cannot wait five real minutes between attempts.
func (w *Worker) WithBackoff(d time.Duration) *Worker {
	w.backoff = d
	return w
}

// Run ticks the worker every interval until ctx is canceled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.log.Error("retry worker tick failed", "error", err)
			}
		}
	}
}

// Tick processes the currently-due entries once, at most the worker's
// batch size of them per call.
func (w *Worker) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := w.store.DueEntries(ctx, now, w.batch)
	if err != nil {
		return perrors.Wrap("loading due retry entries", err)
	}

	for _, e := range due {
		txID, err := w.settler.Attempt(ctx, e)
		switch {
		case err == nil, errors.Is(err, perrors.ErrAlreadySettled):
			e = e.RecordSuccess(txID)
			w.observe("success")
		default:
			e = e.RecordFailure(w.backoff, err.Error())
			if e.Status == StatusFailed {
				w.observe("exhausted")
			} else {
				w.observe("retry")
			}
			w.log.Warn("settlement leg retry failed",
				"offer_id", e.OfferID.String(), "tx_type", string(e.TxType), "attempts", e.Attempts, "error", err)
		}
		if saveErr := w.store.Save(ctx, e); saveErr != nil {
			w.log.Error("failed to save retry entry", "error", saveErr)
		}
		if e.Status == StatusDone {
			w.closeOfferIfComplete(ctx, e.OfferID)
		}
	}
	return nil
}

// closeOfferIfComplete transitions offerID to settled once every one of its
// settlement legs has a done entry in the queue. The settlement engine
// already performs this transition when all three legs land in the same
// Settle call; this covers the case where one leg only lands later, via
// this worker, after the engine has already dropped the offer back to
// funded for the other two legs to retry.
func (w *Worker) closeOfferIfComplete(ctx context.Context, offerID core.OfferID) {
	pending, err := w.store.PendingForOffer(ctx, offerID)
	if err != nil {
		w.log.Error("failed to check pending retry legs", "offer_id", offerID.String(), "error", err)
		return
	}
	if len(pending) > 0 {
		return
	}
	if err := w.offers.CASUpdateStatus(ctx, offerID, offer.StatusFunded, false, offer.StatusSettled, false); err != nil {
		if errors.Is(err, perrors.ErrCASConflict) {
			return
		}
		w.log.Error("failed to close out settled offer", "offer_id", offerID.String(), "error", err)
		return
	}
	if err := w.offers.SetSettledAt(ctx, offerID, time.Now().UTC()); err != nil {
		w.log.Error("failed to record settled_at", "offer_id", offerID.String(), "error", err)
	}
}

func (w *Worker) observe(result string) {
	if w.metrics == nil {
		return
	}
	w.metrics.RetryAttempts.WithLabelValues(result).Inc()
}
