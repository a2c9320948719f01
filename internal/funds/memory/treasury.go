// Package memory provides the in-memory treasury used in development and
// tests. A single mutex serializes every mutation, which matches the
// single-writer discipline the domain assumes of the real primitive.
package memory

import (
	"context"
	"sync"
	"time"

	"bxhive/internal/funds"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/sentinel"
)

// Treasury implements funds.Treasury with in-memory accounts.
type Treasury struct {
	mu       sync.Mutex
	accounts map[id.Address]uint64
	payments map[funds.PaymentID]*payment
}

type payment struct {
	funds.Payment
	settled bool
}

// NewTreasury creates an empty treasury.
func NewTreasury() *Treasury {
	return &Treasury{
		accounts: make(map[id.Address]uint64),
		payments: make(map[funds.PaymentID]*payment),
	}
}

func (t *Treasury) Mint(_ context.Context, to id.Address, amount uint64) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accounts[to] += amount
	return nil
}

func (t *Treasury) Transfer(_ context.Context, from, to id.Address, amount uint64) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accounts[from] < amount {
		return funds.ErrInsufficientFunds
	}
	t.accounts[from] -= amount
	t.accounts[to] += amount
	return nil
}

func (t *Treasury) Authorize(_ context.Context, from, to id.Address, amount uint64) (*funds.Payment, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accounts[from] < amount {
		return nil, funds.ErrInsufficientFunds
	}
	t.accounts[from] -= amount
	p := &payment{
		Payment: funds.Payment{
			ID:        funds.NewPaymentID(),
			From:      from,
			To:        to,
			Amount:    amount,
			CreatedAt: time.Now().UTC(),
		},
	}
	t.payments[p.ID] = p
	out := p.Payment
	return &out, nil
}

func (t *Treasury) Redeem(_ context.Context, paymentID funds.PaymentID, receiver id.Address) (*funds.Payment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if p.settled {
		return nil, sentinel.ErrAlreadyUsed
	}
	if p.To != receiver {
		return nil, funds.ErrWrongReceiver
	}
	p.settled = true
	t.accounts[receiver] += p.Amount
	out := p.Payment
	return &out, nil
}

func (t *Treasury) Refund(_ context.Context, paymentID funds.PaymentID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.payments[paymentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.settled {
		return sentinel.ErrAlreadyUsed
	}
	p.settled = true
	t.accounts[p.From] += p.Amount
	return nil
}

func (t *Treasury) Balance(_ context.Context, addr id.Address) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accounts[addr], nil
}

func requirePositive(amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be > 0")
	}
	return nil
}
