// Package margin provides account balances, margin calculation, and
// reservation tracking.
package margin

import (
	"sync"

	"papertrader/internal/errors"
)

// account holds one user's simulated balance. Balance mutation is guarded by
// the account's own mutex; there is no global balance lock.
type account struct {
	mu        sync.Mutex
	available float64
	blocked   float64
}

// Accounts is the balance store keyed by user.
type Accounts struct {
	mu             sync.RWMutex
	accounts       map[string]*account
	initialBalance float64
}

// NewAccounts creates a balance store. Unknown users are opened lazily with
// the initial balance on first access.
func NewAccounts(initialBalance float64) *Accounts {
	return &Accounts{
		accounts:       make(map[string]*account),
		initialBalance: initialBalance,
	}
}

func (a *Accounts) get(userID string) *account {
	a.mu.RLock()
	acct, ok := a.accounts[userID]
	a.mu.RUnlock()
	if ok {
		return acct
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if acct, ok = a.accounts[userID]; ok {
		return acct
	}
	acct = &account{available: a.initialBalance}
	a.accounts[userID] = acct
	return acct
}

// GetAvailable returns the user's available balance.
func (a *Accounts) GetAvailable(userID string) float64 {
	acct := a.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.available
}

// GetBlocked returns the user's blocked margin total.
func (a *Accounts) GetBlocked(userID string) float64 {
	acct := a.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.blocked
}

// Debit moves amount from available to blocked. Fails with an
// InsufficientFundsError carrying the shortfall when available < amount.
func (a *Accounts) Debit(userID string, amount float64) error {
	acct := a.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.available < amount {
		return errors.NewInsufficientFundsError(userID, amount, acct.available)
	}
	acct.available -= amount
	acct.blocked += amount
	return nil
}

// Credit moves amount from blocked back to available.
func (a *Accounts) Credit(userID string, amount float64) {
	acct := a.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.available += amount
	acct.blocked -= amount
	if acct.blocked < 0 {
		acct.blocked = 0
	}
}

// Settle applies a realized P&L to the user's available balance.
func (a *Accounts) Settle(userID string, pnl float64) {
	acct := a.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.available += pnl
}
