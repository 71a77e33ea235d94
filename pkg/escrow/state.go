package escrow

import (
	"sync"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/perrors"
)

// State abstracts where escrow accounts live, so the instruction logic in
// program.go is identical whether backed by an in-process map (tests, the
// escrow simulator CLI) or the Postgres-backed repository used by the
// coordinator daemon.
type State interface {
	Get(addr core.Pubkey) (*Account, error)
	Put(addr core.Pubkey, acct *Account) error
	Delete(addr core.Pubkey) error
}

// BalanceState is implemented by State backends that track advertiser
// lamport balances. CreateEscrow type-asserts for it and, when present,
// enforces that the advertiser can cover the escrow before funding it; a
// State that doesn't implement it (e.g. a bare test double) skips the
// check entirely, the same way it would if the advertiser ledger lived
// outside this program.
type BalanceState interface {
	Balance(advertiser core.Pubkey) (uint64, error)
	Debit(advertiser core.Pubkey, amount uint64) error
}

// MemState is an in-memory State guarded by a mutex: every PayAttn state
// implementation is guarded because instructions are invoked concurrently
// by the offer coordinator and the retry worker. It also tracks advertiser
// balances, the same way the teacher's VMState tracked publisher balances
// in a plain map guarded by the state's own lock.
type MemState struct {
	mu       sync.RWMutex
	accounts map[core.Pubkey]*Account
	balances map[core.Pubkey]uint64
}

// NewMemState creates an empty in-memory escrow state.
func NewMemState() *MemState {
	return &MemState{accounts: make(map[core.Pubkey]*Account), balances: make(map[core.Pubkey]uint64)}
}

// Credit increases advertiser's tracked balance, e.g. when seeding a test
// or crediting a deposit. It has no on-chain analogue here: PayAttn
// doesn't model a general-purpose wallet, only what CreateEscrow needs to
// check.
func (s *MemState) Credit(advertiser core.Pubkey, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[advertiser] += amount
}

// Balance returns advertiser's tracked lamport balance.
func (s *MemState) Balance(advertiser core.Pubkey) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[advertiser], nil
}

// Debit subtracts amount from advertiser's tracked balance, failing with
// ErrInsufficientAdvertiserFunds rather than going negative.
func (s *MemState) Debit(advertiser core.Pubkey, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[advertiser] < amount {
		return perrors.ErrInsufficientAdvertiserFunds
	}
	s.balances[advertiser] -= amount
	return nil
}

func (s *MemState) Get(addr core.Pubkey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return nil, perrors.ErrEscrowNotFound
	}
	cp := *acct
	cp.OfferID = append(core.OfferID(nil), acct.OfferID...)
	return &cp, nil
}

func (s *MemState) Put(addr core.Pubkey, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acct
	cp.OfferID = append(core.OfferID(nil), acct.OfferID...)
	s.accounts[addr] = &cp
	return nil
}

func (s *MemState) Delete(addr core.Pubkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, addr)
	return nil
}
