package ledger

import (
	"context"
	"sync"

	"github.com/ledgerbook/ledgerbook/internal/money"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	order    []string
}

// NewMemoryRepository builds an in-memory account store used in tests and in
// development mode when no database is configured. The single mutex serializes
// balance mutations, matching the atomicity the Postgres backend gets from
// row-level updates.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Username]; exists {
		return ErrDuplicateUsername
	}
	r.accounts[account.Username] = account
	r.order = append(r.order, account.Username)
	return nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[username]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *memoryRepository) ApplyDelta(_ context.Context, username string, delta money.Amount) (money.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[username]
	if !ok {
		return 0, ErrAccountNotFound
	}
	next := account.Balance + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	account.Balance = next
	r.accounts[username] = account
	return next, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accounts := make([]Account, 0, len(r.order))
	for _, username := range r.order {
		accounts = append(accounts, r.accounts[username])
	}
	return accounts, nil
}
