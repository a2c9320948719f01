// Package domain defines the identifier types shared across bounded contexts.
//
// Addresses identify actors and service instances (users, admins, experiment
// owners, catalog and variation engine instances, the treasury). Numeric IDs
// are monotonic, 0-based, and scoped: user IDs to the directory, group IDs to
// the catalog, variation IDs to their group, match IDs to their engine.
package domain

import (
	"github.com/google/uuid"
)

// Address identifies an account or an independently addressed service
// instance. The canonical form is a UUID string.
type Address string

// NewAddress mints a fresh random address.
func NewAddress() Address {
	return Address(uuid.NewString())
}

// ParseAddress validates the canonical UUID form.
func ParseAddress(s string) (Address, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return Address(parsed.String()), nil
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// UserID is a directory-scoped sequential user identifier.
type UserID uint32

// GroupID is a catalog-scoped sequential experiment group identifier.
type GroupID uint32

// VariationID is a group-scoped sequential variation identifier.
type VariationID uint32

// MatchID is an engine-scoped sequential match identifier.
type MatchID uint32

// TemplateID identifies an experiment template in the directory.
type TemplateID uint8

// VariationKey is the compound lookup key for variation records. The group
// and variation IDs together are unique; neither is meaningful alone.
type VariationKey struct {
	Group     GroupID
	Variation VariationID
}
