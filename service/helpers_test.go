package service

import (
	"sync"
	"testing"

	"scrimbet/events"
	"scrimbet/models"

	"github.com/stretchr/testify/mock"
)

// stubRandom replays fixed values. Shuffle keeps the identity order, so a
// default mines board has its bombs on cells 0-5 and the pool in order on 6-15.
type stubRandom struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
	fi, ii int
}

func (r *stubRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[r.fi%len(r.floats)]
	r.fi++
	return v
}

func (r *stubRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[r.ii%len(r.ints)] % n
	r.ii++
	return v
}

func (r *stubRandom) Shuffle(n int, swap func(i, j int)) {}

// newTestLedger returns a ledger over a store that accepts every save, seeded
// with the given balances
func newTestLedger(t *testing.T, balances map[int64]int64) (*ledgerService, *MockAccountStore, *events.Bus) {
	t.Helper()

	store := new(MockAccountStore)
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()

	bus := events.NewBus()
	ledger := NewLedgerService(store, bus).(*ledgerService)
	for id, balance := range balances {
		ledger.accounts[id] = &models.UserAccount{UserID: id, Balance: balance}
	}
	return ledger, store, bus
}

func totalBalance(ledger *ledgerService) int64 {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	var total int64
	for _, acc := range ledger.accounts {
		total += acc.Balance
	}
	return total
}
