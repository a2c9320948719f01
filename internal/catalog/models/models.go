// Package models defines the experiment catalog's domain types.
package models

import (
	"time"

	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// Conditions raised by the catalog.
const (
	ConditionGroupNotFound dErrors.Condition = "group_not_found"
	ConditionNotGroupOwner dErrors.Condition = "not_group_owner"
	ConditionWrongReceiver dErrors.Condition = "wrong_receiver"
	ConditionSpawnConflict dErrors.Condition = "spawn_conflict"
)

// ExperimentGroup is a named collection of variations owned by one
// experimenter. VariationCount is the number of spawned variations and the
// next variation ID in one.
type ExperimentGroup struct {
	ID             id.GroupID `json:"group_id"`
	Owner          id.Address `json:"owner"`
	Name           string     `json:"name"`
	VariationCount uint32     `json:"variation_count"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SpawnParams are the game parameters for a new variation. The catalog
// passes them through to the engine untouched; the engine validates them.
type SpawnParams struct {
	E1          uint64 `json:"e1"`
	E2          uint64 `json:"e2"`
	Multiplier  uint64 `json:"multiplier"`
	Unit        uint64 `json:"unit"`
	AssetID     uint64 `json:"asset_id"`
	MaxSubjects uint64 `json:"max_subjects"`
}

// VariationRecord is the catalog's entry for one spawned variation: where it
// lives and what it was seeded with.
type VariationRecord struct {
	Key       id.VariationKey `json:"key"`
	Address   id.Address      `json:"address"`
	Label     string          `json:"label"`
	Escrow    uint64          `json:"escrow"`
	CreatedAt time.Time       `json:"created_at"`
}
