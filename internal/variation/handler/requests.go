package handler

import (
	"bxhive/internal/funds"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// DepositEscrowRequest carries the payment authorization to book into escrow.
type DepositEscrowRequest struct {
	PaymentID string `json:"payment_id"`
}

func (r DepositEscrowRequest) Validate() error {
	if r.PaymentID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "payment_id is required")
	}
	return nil
}

func (r DepositEscrowRequest) ParsedPaymentID() funds.PaymentID {
	return funds.PaymentID(r.PaymentID)
}

// AddSubjectsRequest enrolls a batch of subject addresses.
type AddSubjectsRequest struct {
	Subjects []string `json:"subjects"`
}

func (r AddSubjectsRequest) Validate() error {
	if len(r.Subjects) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one subject is required")
	}
	for _, s := range r.Subjects {
		if _, err := id.ParseAddress(s); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid subject address")
		}
	}
	return nil
}

func (r AddSubjectsRequest) ParsedSubjects() []id.Address {
	out := make([]id.Address, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		addr, _ := id.ParseAddress(s)
		out = append(out, addr)
	}
	return out
}

// CreateMatchRequest pairs two enrolled subjects.
type CreateMatchRequest struct {
	Investor string `json:"investor"`
	Trustee  string `json:"trustee"`
}

func (r CreateMatchRequest) Validate() error {
	if _, err := id.ParseAddress(r.Investor); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid investor address")
	}
	if _, err := id.ParseAddress(r.Trustee); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid trustee address")
	}
	return nil
}

func (r CreateMatchRequest) ParsedInvestor() id.Address {
	addr, _ := id.ParseAddress(r.Investor)
	return addr
}

func (r CreateMatchRequest) ParsedTrustee() id.Address {
	addr, _ := id.ParseAddress(r.Trustee)
	return addr
}

// DecisionRequest carries an investment or return amount, in config units.
type DecisionRequest struct {
	Amount uint64 `json:"amount"`
}
