// Package funds models the environment-supplied atomic funds-transfer
// primitive. Accounts are keyed by address; a transfer either fully applies
// or not at all.
//
// A Payment is a one-shot authorization: Authorize moves the amount out of
// the payer's account and into the in-flight payment, so a later Redeem
// (deliver to the named receiver) or Refund (return to the payer) can never
// double-spend. Receivers MUST verify the payment was addressed to them by
// redeeming with their own address; the treasury rejects anything else.
package funds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	id "bxhive/pkg/domain"
)

// Treasury-specific sentinel errors. Services translate these into domain
// errors at the boundary.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWrongReceiver     = errors.New("wrong payment receiver")
)

// PaymentID identifies a one-shot payment authorization.
type PaymentID string

// NewPaymentID mints a fresh payment ID.
func NewPaymentID() PaymentID {
	return PaymentID(uuid.NewString())
}

// Payment is an authorized, not-yet-redeemed transfer. Amount is always
// positive and is already debited from From.
type Payment struct {
	ID        PaymentID
	From      id.Address
	To        id.Address
	Amount    uint64
	CreatedAt time.Time
}

// Treasury is the atomic account ledger.
type Treasury interface {
	// Mint credits an account out of thin air (faucet / bootstrap only).
	Mint(ctx context.Context, to id.Address, amount uint64) error

	// Transfer atomically moves amount between accounts. Fails with
	// ErrInsufficientFunds without any effect when the payer cannot cover it.
	Transfer(ctx context.Context, from, to id.Address, amount uint64) error

	// Authorize debits the payer and stages a one-shot payment to the
	// receiver. Fails with ErrInsufficientFunds without any effect.
	Authorize(ctx context.Context, from, to id.Address, amount uint64) (*Payment, error)

	// Redeem delivers a staged payment to receiver. Fails with
	// sentinel.ErrNotFound for an unknown ID, ErrWrongReceiver when the
	// payment was not addressed to receiver, and sentinel.ErrAlreadyUsed on
	// a second redemption.
	Redeem(ctx context.Context, paymentID PaymentID, receiver id.Address) (*Payment, error)

	// Refund returns an unredeemed payment to the payer.
	Refund(ctx context.Context, paymentID PaymentID) error

	// Balance reports an account balance; unknown accounts are empty.
	Balance(ctx context.Context, addr id.Address) (uint64, error)
}
