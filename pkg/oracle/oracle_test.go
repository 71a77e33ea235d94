package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/core"
)

func TestInMemoryBudgetLedgerReserve(t *testing.T) {
	require := require.New(t)
	ledger := NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 1_000})

	require.Equal(uint64(1_000), ledger.Remaining("adv-1"))
	require.True(ledger.Reserve("adv-1", 400))
	require.Equal(uint64(600), ledger.Remaining("adv-1"))
	require.False(ledger.Reserve("adv-1", 700))
	require.Equal(uint64(600), ledger.Remaining("adv-1"))
}

func TestBudgetAndProofOracleAcceptsWithinBudgetNoProof(t *testing.T) {
	require := require.New(t)
	ledger := NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 500})
	o := NewBudgetAndProofOracle(ledger, nil, nil)

	a, err := o.AssessSingle(context.Background(), Request{
		OfferID:      core.GenerateOfferID(),
		AdvertiserID: "adv-1",
		Amount:       100,
	})
	require.NoError(err)
	require.True(a.Accepted)
	require.True(a.BudgetOK)
	require.False(a.ProofOK)
}

func TestBudgetAndProofOracleRejectsOverBudget(t *testing.T) {
	require := require.New(t)
	ledger := NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 50})
	o := NewBudgetAndProofOracle(ledger, nil, nil)

	a, err := o.AssessSingle(context.Background(), Request{
		OfferID:      core.GenerateOfferID(),
		AdvertiserID: "adv-1",
		Amount:       100,
	})
	require.NoError(err)
	require.False(a.Accepted)
	require.False(a.BudgetOK)
	require.Equal("advertiser budget exhausted", a.Reason)
}

func TestBudgetAndProofOracleAssessBatch(t *testing.T) {
	require := require.New(t)
	ledger := NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 150})
	o := NewBudgetAndProofOracle(ledger, nil, nil)

	reqs := []Request{
		{OfferID: core.GenerateOfferID(), AdvertiserID: "adv-1", Amount: 100},
		{OfferID: core.GenerateOfferID(), AdvertiserID: "adv-1", Amount: 100},
	}
	results, err := o.AssessBatch(context.Background(), reqs)
	require.NoError(err)
	require.Len(results, 2)
	require.True(results[0].Accepted)
	require.False(results[1].Accepted)
}
