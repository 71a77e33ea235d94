// Package oracle defines the pluggable policy-oracle interface the offer
// coordinator consults before accepting an offer. Scoring an offer's
// content against advertiser policy with an LLM is explicitly out of
// scope here; this package only provides the interface every such scorer
// must satisfy, plus one deterministic concrete implementation that
// checks the two facts PayAttn itself can verify: remaining budget and a
// supplied zero-knowledge proof.
package oracle

import (
	"context"
	"sync"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/proof"
)

// Request bundles the facts an offer assessment needs.
type Request struct {
	OfferID      core.OfferID
	AdvertiserID string
	Amount       uint64
	CircuitID    proof.CircuitID
	ProofBytes   []byte
	PublicInputs proof.PublicAssignment
}

// Assessment is the oracle's verdict on a Request.
type Assessment struct {
	Accepted bool
	BudgetOK bool
	ProofOK  bool
	Reason   string
}

// PolicyOracle decides whether an offer should be accepted. Implementations
// may be as simple as BudgetAndProofOracle or, outside this codebase's
// scope, a service that also runs content policy scoring.
type PolicyOracle interface {
	AssessSingle(ctx context.Context, req Request) (Assessment, error)
	AssessBatch(ctx context.Context, reqs []Request) ([]Assessment, error)
}

// BudgetLedger tracks how much of an advertiser's budget remains. It is
// intentionally narrow so the oracle does not need to know how budgets are
// persisted.
type BudgetLedger interface {
	Remaining(advertiserID string) uint64
	Reserve(advertiserID string, amount uint64) bool
}

// InMemoryBudgetLedger is a BudgetLedger held in process memory. It is the
// only ledger in this module: the coordinator daemon and the tests both use
// it, and budgets are not persisted.
type InMemoryBudgetLedger struct {
	mu      sync.Mutex
	budgets map[string]uint64
}

// NewInMemoryBudgetLedger creates a ledger seeded with the given starting
// budgets.
func NewInMemoryBudgetLedger(initial map[string]uint64) *InMemoryBudgetLedger {
	budgets := make(map[string]uint64, len(initial))
	for k, v := range initial {
		budgets[k] = v
	}
	return &InMemoryBudgetLedger{budgets: budgets}
}

func (l *InMemoryBudgetLedger) Remaining(advertiserID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budgets[advertiserID]
}

func (l *InMemoryBudgetLedger) Reserve(advertiserID string, amount uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budgets[advertiserID] < amount {
		return false
	}
	l.budgets[advertiserID] -= amount
	return true
}

// BudgetAndProofOracle accepts an offer when the advertiser's budget covers
// the amount and, if proof bytes are attached, the proof verifies against
// the named circuit. A request without proof bytes is judged on budget
// alone. The budget is reserved before the proof is checked and is not
// released if the proof then fails.
type BudgetAndProofOracle struct {
	ledger    BudgetLedger
	validator *proof.Validator
	log       log.Logger
}

// NewBudgetAndProofOracle builds the concrete oracle over a budget ledger
// and a proof validator.
func NewBudgetAndProofOracle(ledger BudgetLedger, validator *proof.Validator, logger log.Logger) *BudgetAndProofOracle {
	if logger == nil {
		logger = log.NoOp()
	}
	return &BudgetAndProofOracle{ledger: ledger, validator: validator, log: logger}
}

// AssessSingle evaluates one offer.
func (o *BudgetAndProofOracle) AssessSingle(ctx context.Context, req Request) (Assessment, error) {
	budgetOK := o.ledger.Reserve(req.AdvertiserID, req.Amount)

	proofOK := false
	if req.ProofBytes != nil {
		ok, err := o.validator.Verify(req.CircuitID, req.ProofBytes, req.PublicInputs.Circuit())
		if err != nil {
			return Assessment{}, err
		}
		proofOK = ok
	}

	a := Assessment{BudgetOK: budgetOK, ProofOK: proofOK}
	switch {
	case !budgetOK:
		a.Reason = "advertiser budget exhausted"
	case req.ProofBytes != nil && !proofOK:
		a.Reason = "proof failed verification"
	default:
		a.Accepted = true
	}
	return a, nil
}

// AssessBatch evaluates a batch of offers sequentially. The oracle does
// not parallelize internally; callers that want concurrent assessment
// fan out themselves and call AssessSingle per offer.
func (o *BudgetAndProofOracle) AssessBatch(ctx context.Context, reqs []Request) ([]Assessment, error) {
	out := make([]Assessment, len(reqs))
	for i, req := range reqs {
		a, err := o.AssessSingle(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
