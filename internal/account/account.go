// Package account provides the in-process account ledger the marketplace
// debits and credits: named accounts with float balances, personal accounts
// created on demand, and the fee collection account that funds subsidies.
package account

import (
	"fmt"
	"sync"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
)

// Account is one named balance. Personal accounts share their owner's name.
type Account struct {
	Name    string  `json:"name"`
	Owner   string  `json:"owner"`
	Balance float64 `json:"balance"`
}

// Ledger holds all accounts. Safe for concurrent use; the marketplace calls
// it from both command handlers and the AI tick.
type Ledger struct {
	mu              sync.Mutex
	accounts        map[string]*Account
	feeAccount      string
	startingBalance float64
	changed         bool
}

// NewLedger creates an empty ledger configured from the snapshot.
func NewLedger(cfg *config.Snapshot) *Ledger {
	return &Ledger{
		accounts:        make(map[string]*Account),
		feeAccount:      cfg.FeeCollectionAccount,
		startingBalance: cfg.StartingBalance,
	}
}

// resolve finds an account, creating a personal account on demand. Callers
// hold l.mu.
func (l *Ledger) resolve(name, player string) *Account {
	if name == "" {
		name = player
	}
	if a, ok := l.accounts[name]; ok {
		return a
	}
	if name != player {
		return nil // Only personal accounts are created implicitly.
	}
	a := &Account{Name: name, Owner: player, Balance: l.startingBalance}
	l.accounts[name] = a
	l.changed = true
	return a
}

// Balance returns an account's balance, creating a default personal account
// when the player asks for their own for the first time.
func (l *Ledger) Balance(name, player string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.resolve(name, player)
	if a == nil {
		return 0, fmt.Errorf("account %q does not exist", name)
	}
	return a.Balance, nil
}

// Debit withdraws amount from an account. Fails on missing accounts and on
// insufficient funds; balances never go negative.
func (l *Ledger) Debit(name, player string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount %.2f is negative", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.resolve(name, player)
	if a == nil {
		return fmt.Errorf("account %q does not exist", name)
	}
	if a.Balance < amount {
		return fmt.Errorf("account %q holds %.2f, needs %.2f", name, a.Balance, amount)
	}
	a.Balance -= amount
	l.changed = true
	return nil
}

// Credit deposits amount into an account.
func (l *Ledger) Credit(name, player string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount %.2f is negative", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.resolve(name, player)
	if a == nil {
		return fmt.Errorf("account %q does not exist", name)
	}
	a.Balance += amount
	l.changed = true
	return nil
}

// CanCoverSubsidy reports whether the fee collection account can fully fund
// a subsidy payout. A fee account that was never funded explicitly is
// treated as bottomless (the server absorbs the cost).
func (l *Ledger) CanCoverSubsidy(amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[l.feeAccount]
	if !ok {
		return true
	}
	return a.Balance >= amount
}

// DepositFee pays a collected fee into the fee collection account; negative
// amounts withdraw a subsidy. No-op when the account is bottomless.
func (l *Ledger) DepositFee(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[l.feeAccount]
	if !ok {
		return
	}
	a.Balance += amount
	if a.Balance < 0 {
		a.Balance = 0
	}
	l.changed = true
}

// FundFeeAccount creates (or tops up) the fee collection account, making it
// finite from then on.
func (l *Ledger) FundFeeAccount(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[l.feeAccount]
	if !ok {
		a = &Account{Name: l.feeAccount, Owner: l.feeAccount}
		l.accounts[l.feeAccount] = a
	}
	a.Balance += amount
	l.changed = true
}

// Restore inserts a persisted account, overwriting any existing entry.
func (l *Ledger) Restore(a Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := a
	l.accounts[a.Name] = &cp
}

// Accounts returns a snapshot of all accounts for persistence.
func (l *Ledger) Accounts() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, *a)
	}
	return out
}

// Changed reports whether any balance moved since the last ClearChanged.
func (l *Ledger) Changed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// ClearChanged resets the dirty flag after a save.
func (l *Ledger) ClearChanged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changed = false
}
