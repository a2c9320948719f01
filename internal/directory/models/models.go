// Package models defines the directory's domain types: registered users,
// platform admins, and experiment templates.
package models

import (
	"time"

	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// Conditions raised by the directory.
const (
	ConditionAlreadyRegistered dErrors.Condition = "already_registered"
	ConditionInvalidRole       dErrors.Condition = "invalid_role"
	ConditionNotAdmin          dErrors.Condition = "not_admin"
	ConditionNotSuperAdmin     dErrors.Condition = "not_super_admin"
	ConditionAdminNotFound     dErrors.Condition = "admin_not_found"
)

// Role is a registered user's platform role.
type Role string

const (
	RoleSubject      Role = "subject"
	RoleExperimenter Role = "experimenter"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleSubject || r == RoleExperimenter
}

// User is one registered participant or experimenter.
type User struct {
	ID        id.UserID  `json:"user_id"`
	Address   id.Address `json:"address"`
	Role      Role       `json:"role"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

// AdminRole distinguishes the bootstrap super admin from operators it
// appoints.
type AdminRole string

const (
	AdminRoleSuper    AdminRole = "super"
	AdminRoleOperator AdminRole = "operator"
)

// Admin is a platform administrator.
type Admin struct {
	Address id.Address `json:"address"`
	Role    AdminRole  `json:"role"`
	AddedAt time.Time  `json:"added_at"`
}

// Template describes an experiment engine kind admins have approved for use.
type Template struct {
	ID          id.TemplateID `json:"template_id"`
	Kind        string        `json:"kind"`
	Name        string        `json:"name"`
	PlayerCount uint8         `json:"player_count"`
	Enabled     bool          `json:"enabled"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Validate checks template fields.
func (t Template) Validate() error {
	if t.Kind == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "template kind is required")
	}
	if t.PlayerCount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "player count must be > 0")
	}
	return nil
}
