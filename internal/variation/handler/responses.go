package handler

import (
	"time"

	"bxhive/internal/variation/models"
)

// MatchResponse is the wire form of a match.
type MatchResponse struct {
	MatchID        uint32     `json:"match_id"`
	Investor       string     `json:"investor"`
	Trustee        string     `json:"trustee"`
	Phase          string     `json:"phase"`
	Investment     uint64     `json:"investment"`
	ReturnAmount   uint64     `json:"return_amount"`
	InvestorPayout uint64     `json:"investor_payout"`
	TrusteePayout  uint64     `json:"trustee_payout"`
	PaidOut        bool       `json:"paid_out"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// FromMatch converts a domain match to its wire form.
func FromMatch(m models.Match) MatchResponse {
	resp := MatchResponse{
		MatchID:        uint32(m.ID),
		Investor:       m.Investor.String(),
		Trustee:        m.Trustee.String(),
		Phase:          m.Phase.String(),
		Investment:     m.Investment,
		ReturnAmount:   m.ReturnAmount,
		InvestorPayout: m.InvestorPayout,
		TrusteePayout:  m.TrusteePayout,
		PaidOut:        m.PaidOut,
		CreatedAt:      m.CreatedAt,
	}
	if !m.CompletedAt.IsZero() {
		completed := m.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// ConfigResponse is the wire form of a variation's configuration and status.
type ConfigResponse struct {
	GroupID     uint32 `json:"group_id"`
	VariationID uint32 `json:"variation_id"`
	Owner       string `json:"owner"`
	E1          uint64 `json:"e1"`
	E2          uint64 `json:"e2"`
	Multiplier  uint64 `json:"multiplier"`
	Unit        uint64 `json:"unit"`
	AssetID     uint64 `json:"asset_id"`
	MaxSubjects uint64 `json:"max_subjects"`
	Status      string `json:"status"`
}

// FromConfig converts a config view to its wire form.
func FromConfig(v models.ConfigView) ConfigResponse {
	return ConfigResponse{
		GroupID:     uint32(v.Group),
		VariationID: uint32(v.Variation),
		Owner:       v.Owner.String(),
		E1:          v.E1,
		E2:          v.E2,
		Multiplier:  v.Multiplier,
		Unit:        v.Unit,
		AssetID:     v.AssetID,
		MaxSubjects: v.MaxSubjects,
		Status:      v.Status.String(),
	}
}

// EscrowResponse reports the engine's escrow balance.
type EscrowResponse struct {
	Balance uint64 `json:"balance"`
}

// AmountResponse reports the amount moved by a deposit or withdrawal.
type AmountResponse struct {
	Amount uint64 `json:"amount"`
}

// SubjectResponse is the wire form of an enrollment record.
type SubjectResponse struct {
	Enrolled bool `json:"enrolled"`
	Assigned bool `json:"assigned"`
}

// PlayerMatchResponse reports a participant's assigned match.
type PlayerMatchResponse struct {
	MatchID uint32 `json:"match_id"`
}
