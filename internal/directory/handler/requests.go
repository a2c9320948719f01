package handler

import (
	"bxhive/internal/directory/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// RegisterRequest creates a new user.
type RegisterRequest struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

func (r RegisterRequest) Validate() error {
	if r.Role == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "role is required")
	}
	return nil
}

// AddAdminRequest appoints an operator admin.
type AddAdminRequest struct {
	Address string `json:"address"`
}

func (r AddAdminRequest) Validate() error {
	if _, err := id.ParseAddress(r.Address); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid admin address")
	}
	return nil
}

func (r AddAdminRequest) ParsedAddress() id.Address {
	addr, _ := id.ParseAddress(r.Address)
	return addr
}

// RegisterTemplateRequest registers an experiment template.
type RegisterTemplateRequest struct {
	TemplateID  uint8  `json:"template_id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	PlayerCount uint8  `json:"player_count"`
	Enabled     bool   `json:"enabled"`
}

func (r RegisterTemplateRequest) Template() models.Template {
	return models.Template{
		ID:          id.TemplateID(r.TemplateID),
		Kind:        r.Kind,
		Name:        r.Name,
		PlayerCount: r.PlayerCount,
		Enabled:     r.Enabled,
	}
}
