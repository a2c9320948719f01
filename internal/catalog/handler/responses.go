package handler

import (
	"time"

	"bxhive/internal/catalog/models"
)

// GroupResponse is the wire form of an experiment group.
type GroupResponse struct {
	GroupID        uint32    `json:"group_id"`
	Owner          string    `json:"owner"`
	Name           string    `json:"name"`
	VariationCount uint32    `json:"variation_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromGroup converts a domain group to its wire form.
func FromGroup(g *models.ExperimentGroup) GroupResponse {
	return GroupResponse{
		GroupID:        uint32(g.ID),
		Owner:          g.Owner.String(),
		Name:           g.Name,
		VariationCount: g.VariationCount,
		CreatedAt:      g.CreatedAt,
	}
}

// VariationResponse is the wire form of a variation record.
type VariationResponse struct {
	GroupID     uint32    `json:"group_id"`
	VariationID uint32    `json:"variation_id"`
	Address     string    `json:"address"`
	Label       string    `json:"label"`
	Escrow      uint64    `json:"escrow"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromVariation converts a domain variation record to its wire form.
func FromVariation(rec *models.VariationRecord) VariationResponse {
	return VariationResponse{
		GroupID:     uint32(rec.Key.Group),
		VariationID: uint32(rec.Key.Variation),
		Address:     rec.Address.String(),
		Label:       rec.Label,
		Escrow:      rec.Escrow,
		CreatedAt:   rec.CreatedAt,
	}
}

// GroupWithVariationResponse is the fused creation result.
type GroupWithVariationResponse struct {
	Group     GroupResponse     `json:"group"`
	Variation VariationResponse `json:"variation"`
}
