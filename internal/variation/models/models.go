// Package models defines the variation engine's domain types.
package models

import (
	"time"

	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// Conditions raised by the variation engine. The string form is the stable
// wire form surfaced in error envelopes.
const (
	ConditionInvalidUnit        dErrors.Condition = "invalid_unit"
	ConditionInsufficientEscrow dErrors.Condition = "insufficient_escrow"
	ConditionAlreadyEnrolled    dErrors.Condition = "already_enrolled"
	ConditionRosterClosed       dErrors.Condition = "roster_closed"
	ConditionRosterFull         dErrors.Condition = "roster_full"
	ConditionNotEnrolled        dErrors.Condition = "not_enrolled"
	ConditionNotActive          dErrors.Condition = "not_active"
	ConditionAlreadyAssigned    dErrors.Condition = "already_assigned"
	ConditionWrongCaller        dErrors.Condition = "wrong_caller"
	ConditionWrongPhase         dErrors.Condition = "wrong_phase"
	ConditionExceedsEndowment   dErrors.Condition = "exceeds_endowment"
	ConditionNotUnitMultiple    dErrors.Condition = "not_unit_multiple"
	ConditionExceedsMaximum     dErrors.Condition = "exceeds_maximum"
	ConditionMatchesPending     dErrors.Condition = "matches_pending"
	ConditionNoRemainingEscrow  dErrors.Condition = "no_remaining_escrow"
	ConditionWrongReceiver      dErrors.Condition = "wrong_receiver"
)

// Phase is a match's decision phase. Transitions are linear and forward
// only: InvestorDecision → TrusteeDecision → Completed.
type Phase uint8

const (
	PhaseInvestorDecision Phase = iota
	PhaseTrusteeDecision
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseInvestorDecision:
		return "investor_decision"
	case PhaseTrusteeDecision:
		return "trustee_decision"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Status is the engine lifecycle state. Registration is one-way:
// active → closed languishes forever; there is no reopen path.
type Status uint8

const (
	StatusActive Status = iota
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config is a variation's immutable game parameters, set once at
// instantiation.
//
// Invariants:
//   - Unit > 0
//   - every investment and return amount is a multiple of Unit
//   - MaxSubjects of 0 means unlimited enrollment
type Config struct {
	Group       id.GroupID     `json:"group_id"`
	Variation   id.VariationID `json:"variation_id"`
	Owner       id.Address     `json:"owner"`
	E1          uint64         `json:"e1"`
	E2          uint64         `json:"e2"`
	Multiplier  uint64         `json:"multiplier"`
	Unit        uint64         `json:"unit"`
	AssetID     uint64         `json:"asset_id"`
	MaxSubjects uint64         `json:"max_subjects"`
}

// Validate checks the constructor invariants.
func (c Config) Validate() error {
	if c.Unit == 0 {
		return dErrors.NewCondition(dErrors.CodeInvalidInput, ConditionInvalidUnit, "unit must be > 0")
	}
	if c.Owner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	return nil
}

// ConfigView is the read-model returned by config queries: the immutable
// parameters plus the current lifecycle status.
type ConfigView struct {
	Config
	Status Status `json:"status"`
}

// Subject is one participant's enrollment record.
//
// Invariant: Assigned ⇒ Enrolled. Assignment is permanent; no release path
// exists.
type Subject struct {
	Enrolled bool `json:"enrolled"`
	Assigned bool `json:"assigned"`
}

// Match is one paired investor/trustee interaction.
//
// Once Phase is Completed all monetary fields are frozen.
type Match struct {
	ID             id.MatchID `json:"match_id"`
	Investor       id.Address `json:"investor"`
	Trustee        id.Address `json:"trustee"`
	Phase          Phase      `json:"phase"`
	CreatedAt      time.Time  `json:"created_at"`
	Investment     uint64     `json:"investment"`
	ReturnAmount   uint64     `json:"return_amount"`
	InvestorPayout uint64     `json:"investor_payout"`
	TrusteePayout  uint64     `json:"trustee_payout"`
	CompletedAt    time.Time  `json:"completed_at,omitzero"`
	PaidOut        bool       `json:"paid_out"`
}
