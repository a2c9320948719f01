// Package escrow tracks deposited vs. disbursed funds for one variation
// engine. Pure accounting: the ledger never touches the treasury.
package escrow

import (
	"sync"

	"bxhive/internal/variation/models"
	dErrors "bxhive/pkg/domain-errors"
)

// Ledger is one engine's escrow account.
//
// Invariant: disbursed ≤ deposited at all times, so Balance never
// underflows. Disbursement is total-or-fail; no partial application.
type Ledger struct {
	mu        sync.RWMutex
	deposited uint64
	disbursed uint64
}

// NewLedger returns a zeroed ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Fund adds to the deposited total.
func (l *Ledger) Fund(amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "escrow deposit must be > 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deposited += amount
	return nil
}

// Disburse adds to the disbursed total, failing with insufficient_escrow
// when the remaining balance cannot cover the amount.
func (l *Ledger) Disburse(amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deposited-l.disbursed < amount {
		return dErrors.NewCondition(dErrors.CodeResourceExhausted, models.ConditionInsufficientEscrow,
			"escrow balance cannot cover disbursement")
	}
	l.disbursed += amount
	return nil
}

// Balance returns deposited − disbursed.
func (l *Ledger) Balance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.deposited - l.disbursed
}

// Deposited returns the lifetime deposit total.
func (l *Ledger) Deposited() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.deposited
}

// Disbursed returns the lifetime disbursement total.
func (l *Ledger) Disbursed() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.disbursed
}
