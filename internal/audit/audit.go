// Package audit captures key domain actions as events. Keep events
// transport-agnostic so sinks can fan out (Kafka in deployments, an
// in-memory sink in development and tests).
//
// Emission is fail-open: a sink failure is logged and never fails the
// business operation, because the domain's atomicity guarantees must not
// depend on the audit pipeline.
package audit

import (
	"context"
	"time"

	id "bxhive/pkg/domain"
)

// Action names a recorded domain action.
type Action string

const (
	// Directory actions
	ActionUserRegistered     Action = "user_registered"
	ActionAdminAdded         Action = "admin_added"
	ActionAdminRemoved       Action = "admin_removed"
	ActionTemplateRegistered Action = "template_registered"

	// Catalog actions
	ActionExperimentCreated Action = "experiment_created"
	ActionVariationSpawned  Action = "variation_spawned"
	ActionSpawnRolledBack   Action = "spawn_rolled_back"

	// Variation actions
	ActionEscrowDeposited     Action = "escrow_deposited"
	ActionSubjectsEnrolled    Action = "subjects_enrolled"
	ActionMatchCreated        Action = "match_created"
	ActionRegistrationClosed  Action = "registration_closed"
	ActionInvestmentSubmitted Action = "investment_submitted"
	ActionMatchCompleted      Action = "match_completed"
	ActionEscrowWithdrawn     Action = "escrow_withdrawn"
)

// Event is one recorded domain action.
type Event struct {
	Timestamp time.Time  `json:"timestamp"`
	Action    Action     `json:"action"`
	Actor     id.Address `json:"actor,omitempty"`
	RequestID string     `json:"request_id,omitempty"`

	// Entity references; zero values mean not applicable.
	Engine  id.Address `json:"engine,omitempty"`
	Group   uint32     `json:"group,omitempty"`
	Match   uint32     `json:"match,omitempty"`
	Subject id.Address `json:"subject,omitempty"`

	// Amount carries the monetary quantity of funding, payout, and
	// withdrawal events, in config units.
	Amount uint64 `json:"amount,omitempty"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
