package offer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/oracle"
	"github.com/payattn/payattn/pkg/perrors"
)

type memStore struct {
	mu     sync.Mutex
	offers map[string]*Offer
}

func newMemStore() *memStore {
	return &memStore{offers: make(map[string]*Offer)}
}

func (s *memStore) Create(ctx context.Context, o *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[o.OfferID.String()] = o
	return nil
}

func (s *memStore) Get(ctx context.Context, offerID core.OfferID) (*Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID.String()]
	if !ok {
		return nil, perrors.ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus Status, expectSettling bool, newStatus Status, newSettling bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID.String()]
	if !ok {
		return perrors.ErrOfferNotFound
	}
	if o.Status != expectStatus || o.Settling != expectSettling {
		return perrors.ErrCASConflict
	}
	o.Status = newStatus
	o.Settling = newSettling
	return nil
}

func (s *memStore) SetEscrowAddress(ctx context.Context, offerID core.OfferID, addr core.Pubkey, bump uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID.String()]
	if !ok {
		return perrors.ErrOfferNotFound
	}
	o.EscrowAddress = addr
	o.EscrowBump = bump
	return nil
}

func (s *memStore) SetFundingTxID(ctx context.Context, offerID core.OfferID, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID.String()]
	if !ok {
		return perrors.ErrOfferNotFound
	}
	o.FundingTxID = txID
	return nil
}

func (s *memStore) SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID.String()]
	if !ok {
		return perrors.ErrOfferNotFound
	}
	o.SettledAt = &settledAt
	return nil
}

type memSessionStore struct {
	mu      sync.Mutex
	records []*SessionRecord
}

func (s *memSessionStore) Create(ctx context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func testPubkeyOffer(t *testing.T, seed byte) core.Pubkey {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = seed
	}
	pk, err := core.PubkeyFromBytes(raw[:])
	require.NoError(t, err)
	return pk
}

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore, core.Pubkey) {
	t.Helper()
	c, store, platform, _ := newTestCoordinatorWithProgram(t)
	return c, store, platform
}

func newTestCoordinatorWithProgram(t *testing.T) (*Coordinator, *memStore, core.Pubkey, *escrow.Program) {
	t.Helper()
	store := newMemStore()
	programID := testPubkeyOffer(t, 50)
	program := escrow.NewProgram(programID, escrow.NewMemState())
	platform := testPubkeyOffer(t, 51)
	ledger := oracle.NewInMemoryBudgetLedger(map[string]uint64{})
	policyOracle := oracle.NewBudgetAndProofOracle(ledger, nil, nil)
	c := NewCoordinator(store, nil, program, policyOracle, platform, "/api/v1/offers/verify", nil)
	return c, store, platform, program
}

func TestSubmitOfferCreatesOfferMade(t *testing.T) {
	require := require.New(t)
	c, _, platform := newTestCoordinator(t)

	advertiser := testPubkeyOffer(t, 1)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: advertiser.String(),
		PublisherID:  "publisher-1",
		CreativeID:   "creative-1",
		UserPubkey:   testPubkeyOffer(t, 2),
		Amount:       1_000,
	})
	require.NoError(err)
	require.Equal(StatusOfferMade, o.Status)
	require.Equal(platform, o.PlatformPubkey)
}

func TestSubmitOfferRejectsZeroAmount(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, err := c.SubmitOffer(context.Background(), SubmitRequest{AdvertiserID: "x", Amount: 0})
	require.ErrorIs(t, err, perrors.ErrAmountZero)
}

func TestAcceptOfferCreatesEscrowAndReturnsPaymentRequirements(t *testing.T) {
	require := require.New(t)
	c, store, _, program := newTestCoordinatorWithProgram(t)

	advertiser := testPubkeyOffer(t, 3)
	program.State.(*escrow.MemState).Credit(advertiser, 5_000)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: advertiser.String(),
		UserPubkey:   testPubkeyOffer(t, 4),
		Amount:       5_000,
	})
	require.NoError(err)

	reqs, err := c.AcceptOffer(context.Background(), o.OfferID)
	require.NoError(err)
	require.Equal(uint64(5_000), reqs.Amount)
	require.NotEmpty(reqs.EscrowAddress)

	updated, err := store.Get(context.Background(), o.OfferID)
	require.NoError(err)
	require.Equal(StatusAccepted, updated.Status)
	require.False(updated.EscrowAddress.IsZero())
}

func TestAcceptOfferRejectsNonPubkeyAdvertiserID(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: "not-a-pubkey",
		UserPubkey:   testPubkeyOffer(t, 4),
		Amount:       100,
	})
	require.NoError(t, err)

	_, err = c.AcceptOffer(context.Background(), o.OfferID)
	require.Error(t, err)
}

func TestAcceptOfferIsIdempotentWhenAlreadyAccepted(t *testing.T) {
	require := require.New(t)
	c, store, _, program := newTestCoordinatorWithProgram(t)
	advertiser := testPubkeyOffer(t, 5)
	program.State.(*escrow.MemState).Credit(advertiser, 100)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: advertiser.String(),
		UserPubkey:   testPubkeyOffer(t, 6),
		Amount:       100,
	})
	require.NoError(err)

	first, err := c.AcceptOffer(context.Background(), o.OfferID)
	require.NoError(err)

	second, err := c.AcceptOffer(context.Background(), o.OfferID)
	require.NoError(err)
	require.Equal(first, second)

	updated, err := store.Get(context.Background(), o.OfferID)
	require.NoError(err)
	require.Equal(StatusAccepted, updated.Status)
}

func TestAcceptOfferRejectsWrongStatus(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	advertiser := testPubkeyOffer(t, 5)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: advertiser.String(),
		UserPubkey:   testPubkeyOffer(t, 6),
		Amount:       100,
	})
	require.NoError(t, err)
	require.NoError(t, store.CASUpdateStatus(context.Background(), o.OfferID, StatusOfferMade, false, StatusRejected, false))

	_, err = c.AcceptOffer(context.Background(), o.OfferID)
	require.ErrorIs(t, err, perrors.ErrOfferNotAccepted)
}

func TestVerifyPaymentMovesToFundedOnceEscrowHoldsAmount(t *testing.T) {
	require := require.New(t)
	c, _, _, program := newTestCoordinatorWithProgram(t)

	advertiser := testPubkeyOffer(t, 7)
	program.State.(*escrow.MemState).Credit(advertiser, 2_500)
	o, err := c.SubmitOffer(context.Background(), SubmitRequest{
		AdvertiserID: advertiser.String(),
		UserPubkey:   testPubkeyOffer(t, 8),
		Amount:       2_500,
	})
	require.NoError(err)
	reqs, err := c.AcceptOffer(context.Background(), o.OfferID)
	require.NoError(err)
	escrowAddr, err := core.PubkeyFromBase58(reqs.EscrowAddress)
	require.NoError(err)

	funded, err := c.VerifyPayment(context.Background(), o.OfferID, "tx-funding-1", escrowAddr)
	require.NoError(err)
	require.Equal(StatusFunded, funded.Status)
	require.Equal("tx-funding-1", funded.FundingTxID)

	// verifying again is idempotent: same funding_tx_id, no error
	again, err := c.VerifyPayment(context.Background(), o.OfferID, "tx-funding-1", escrowAddr)
	require.NoError(err)
	require.Equal(StatusFunded, again.Status)
	require.Equal("tx-funding-1", again.FundingTxID)
}

func TestAssessSingleArchivesSessionWhenStoreConfigured(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	programID := testPubkeyOffer(t, 60)
	program := escrow.NewProgram(programID, escrow.NewMemState())
	platform := testPubkeyOffer(t, 61)
	ledger := oracle.NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 1_000})
	policyOracle := oracle.NewBudgetAndProofOracle(ledger, nil, nil)
	sessions := &memSessionStore{}
	c := NewCoordinator(store, sessions, program, policyOracle, platform, "/verify", nil)

	offerID := core.GenerateOfferID()
	a, err := c.AssessSingle(context.Background(), oracle.Request{
		OfferID:      offerID,
		AdvertiserID: "adv-1",
		Amount:       100,
	})
	require.NoError(err)
	require.True(a.Accepted)

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	require.Len(sessions.records, 1)
	require.Equal(offerID.String(), sessions.records[0].OfferID)
}

func TestAssessBatchArchivesOneSessionPerRequest(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	programID := testPubkeyOffer(t, 62)
	program := escrow.NewProgram(programID, escrow.NewMemState())
	platform := testPubkeyOffer(t, 63)
	ledger := oracle.NewInMemoryBudgetLedger(map[string]uint64{"adv-1": 1_000})
	policyOracle := oracle.NewBudgetAndProofOracle(ledger, nil, nil)
	sessions := &memSessionStore{}
	c := NewCoordinator(store, sessions, program, policyOracle, platform, "/verify", nil)

	reqs := []oracle.Request{
		{OfferID: core.GenerateOfferID(), AdvertiserID: "adv-1", Amount: 100},
		{OfferID: core.GenerateOfferID(), AdvertiserID: "adv-1", Amount: 200},
	}
	results, err := c.AssessBatch(context.Background(), reqs)
	require.NoError(err)
	require.Len(results, 2)

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	require.Len(sessions.records, 2)
}
