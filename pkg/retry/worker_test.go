package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/offer"
	"github.com/payattn/payattn/pkg/perrors"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]Entry)}
}

func key(e Entry) string {
	return e.OfferID.String() + "/" + string(e.TxType)
}

func (s *memStore) Upsert(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(e)] = e
	return nil
}

func (s *memStore) DueEntries(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Entry
	for _, e := range s.entries {
		if e.Due(now) {
			due = append(due, e)
		}
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *memStore) Save(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(e)] = e
	return nil
}

func (s *memStore) PendingForOffer(ctx context.Context, offerID core.OfferID) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []Entry
	for _, e := range s.entries {
		if e.OfferID.Equal(offerID) && e.Status == StatusPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

type fakeSettler struct {
	mu      sync.Mutex
	results map[string]error
	calls   int
}

func (f *fakeSettler) Attempt(ctx context.Context, e Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.results[key(e)]; err != nil {
		return "", err
	}
	return "tx-" + key(e), nil
}

type fakeOfferStore struct {
	mu        sync.Mutex
	status    offer.Status
	settledAt *time.Time
	casErr    error
	casCalls  int
}

func (f *fakeOfferStore) CASUpdateStatus(ctx context.Context, offerID core.OfferID, expectStatus offer.Status, expectSettling bool, newStatus offer.Status, newSettling bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casCalls++
	if f.casErr != nil {
		return f.casErr
	}
	if f.status != expectStatus {
		return perrors.ErrCASConflict
	}
	f.status = newStatus
	return nil
}

func (f *fakeOfferStore) SetSettledAt(ctx context.Context, offerID core.OfferID, settledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := settledAt
	f.settledAt = &t
	return nil
}

func TestTickSettlesDueEntrySuccessfully(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	offerID := core.GenerateOfferID()
	entry := NewEntry(offerID, TxUserSettlement, core.Pubkey{}, 100)
	require.NoError(store.Upsert(context.Background(), entry))

	settler := &fakeSettler{results: map[string]error{key(entry): nil}}
	offers := &fakeOfferStore{status: offer.StatusFunded}
	worker := NewWorker(store, settler, offers, nil, nil)

	require.NoError(worker.Tick(context.Background()))

	store.mu.Lock()
	saved := store.entries[key(entry)]
	store.mu.Unlock()
	require.Equal(StatusDone, saved.Status)
	require.NotEmpty(saved.SuccessTxID)
	require.Equal(1, settler.calls)
}

func TestTickClosesOfferOutOnceLastPendingLegSucceeds(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	offerID := core.GenerateOfferID()
	entry := NewEntry(offerID, TxPlatformSettlement, core.Pubkey{}, 100)
	require.NoError(store.Upsert(context.Background(), entry))

	settler := &fakeSettler{results: map[string]error{key(entry): nil}}
	offers := &fakeOfferStore{status: offer.StatusFunded}
	worker := NewWorker(store, settler, offers, nil, nil)

	require.NoError(worker.Tick(context.Background()))

	offers.mu.Lock()
	defer offers.mu.Unlock()
	require.Equal(offer.StatusSettled, offers.status)
	require.NotNil(offers.settledAt)
}

func TestTickDoesNotCloseOfferOutWhileSiblingLegsArePending(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	offerID := core.GenerateOfferID()
	done := NewEntry(offerID, TxUserSettlement, core.Pubkey{}, 70)
	stillPending := NewEntry(offerID, TxPublisherSettlement, core.Pubkey{}, 25)
	stillPending.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	require.NoError(store.Upsert(context.Background(), done))
	require.NoError(store.Upsert(context.Background(), stillPending))

	settler := &fakeSettler{results: map[string]error{key(done): nil}}
	offers := &fakeOfferStore{status: offer.StatusFunded}
	worker := NewWorker(store, settler, offers, nil, nil)

	require.NoError(worker.Tick(context.Background()))

	offers.mu.Lock()
	defer offers.mu.Unlock()
	require.Equal(offer.StatusFunded, offers.status)
	require.Equal(0, offers.casCalls)
}

func TestTickTreatsAlreadySettledAsSuccess(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	offerID := core.GenerateOfferID()
	entry := NewEntry(offerID, TxPublisherSettlement, core.Pubkey{}, 100)
	require.NoError(store.Upsert(context.Background(), entry))

	settler := &fakeSettler{results: map[string]error{key(entry): perrors.ErrAlreadySettled}}
	offers := &fakeOfferStore{status: offer.StatusFunded}
	worker := NewWorker(store, settler, offers, nil, nil)

	require.NoError(worker.Tick(context.Background()))

	store.mu.Lock()
	saved := store.entries[key(entry)]
	store.mu.Unlock()
	require.Equal(StatusDone, saved.Status)
}

func TestTickReschedulesFailedEntryWithBackoff(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	offerID := core.GenerateOfferID()
	entry := NewEntry(offerID, TxPlatformSettlement, core.Pubkey{}, 100)
	require.NoError(store.Upsert(context.Background(), entry))

	settler := &fakeSettler{results: map[string]error{key(entry): errors.New("rpc unavailable")}}
	offers := &fakeOfferStore{status: offer.StatusFunded}
	worker := NewWorker(store, settler, offers, nil, nil).WithBackoff(time.Hour)

	require.NoError(worker.Tick(context.Background()))

	store.mu.Lock()
	saved := store.entries[key(entry)]
	store.mu.Unlock()
	require.Equal(StatusPending, saved.Status)
	require.Equal(1, saved.Attempts)
	require.False(saved.Due(time.Now().UTC()))
}
