package handler

import (
	"bxhive/internal/catalog/models"
	"bxhive/internal/funds"
	dErrors "bxhive/pkg/domain-errors"
)

// CreateGroupRequest opens a new experiment group.
type CreateGroupRequest struct {
	Name string `json:"name"`
}

func (r CreateGroupRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	return nil
}

// SpawnRequest spawns a variation under an existing group, funded by the
// referenced payment.
type SpawnRequest struct {
	Label       string `json:"label"`
	PaymentID   string `json:"payment_id"`
	E1          uint64 `json:"e1"`
	E2          uint64 `json:"e2"`
	Multiplier  uint64 `json:"multiplier"`
	Unit        uint64 `json:"unit"`
	AssetID     uint64 `json:"asset_id"`
	MaxSubjects uint64 `json:"max_subjects"`
}

func (r SpawnRequest) Validate() error {
	if r.PaymentID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "payment_id is required")
	}
	return nil
}

func (r SpawnRequest) Params() models.SpawnParams {
	return models.SpawnParams{
		E1:          r.E1,
		E2:          r.E2,
		Multiplier:  r.Multiplier,
		Unit:        r.Unit,
		AssetID:     r.AssetID,
		MaxSubjects: r.MaxSubjects,
	}
}

func (r SpawnRequest) ParsedPaymentID() funds.PaymentID {
	return funds.PaymentID(r.PaymentID)
}

// CreateWithVariationRequest opens a group and spawns its first variation in
// one call.
type CreateWithVariationRequest struct {
	Name string `json:"name"`
	SpawnRequest
}

func (r CreateWithVariationRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	return r.SpawnRequest.Validate()
}
