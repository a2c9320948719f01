package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bxhive/internal/directory/models"
	dirmem "bxhive/internal/directory/store/memory"
	fundsmem "bxhive/internal/funds/memory"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

func newService(t *testing.T) (*Service, *fundsmem.Treasury, id.Address) {
	t.Helper()
	treasury := fundsmem.NewTreasury()
	superAdmin := id.NewAddress()
	svc := New(dirmem.New(), treasury, superAdmin, WithFaucet(5000))
	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc, treasury, superAdmin
}

func TestRegisterAssignsSequentialIDsAndFundsAccount(t *testing.T) {
	ctx := context.Background()
	svc, treasury, _ := newService(t)

	alice, err := svc.Register(ctx, models.RoleSubject, "alice")
	require.NoError(t, err)
	assert.Equal(t, id.UserID(0), alice.ID)
	assert.False(t, alice.Address.IsZero())

	bob, err := svc.Register(ctx, models.RoleExperimenter, "bob")
	require.NoError(t, err)
	assert.Equal(t, id.UserID(1), bob.ID)

	bal, err := treasury.Balance(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), bal)
}

func TestAccountBalance(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	alice, err := svc.Register(ctx, models.RoleSubject, "alice")
	require.NoError(t, err)

	bal, err := svc.AccountBalance(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), bal)

	// Unregistered addresses are not exposed, funded or not.
	_, err = svc.AccountBalance(ctx, id.NewAddress())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Register(context.Background(), "observer", "mallory")
	assert.Equal(t, models.ConditionInvalidRole, dErrors.ConditionOf(err))
}

func TestUserLookups(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	alice, err := svc.Register(ctx, models.RoleSubject, "alice")
	require.NoError(t, err)

	byAddr, err := svc.GetUser(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byAddr.ID)

	byID, err := svc.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Address, byID.Address)

	_, err = svc.GetUser(ctx, id.NewAddress())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestAdminManagement(t *testing.T) {
	ctx := context.Background()
	svc, _, superAdmin := newService(t)
	operator := id.NewAddress()

	admin, err := svc.AddAdmin(ctx, superAdmin, operator)
	require.NoError(t, err)
	assert.Equal(t, models.AdminRoleOperator, admin.Role)

	// Operators cannot appoint admins.
	_, err = svc.AddAdmin(ctx, operator, id.NewAddress())
	assert.Equal(t, models.ConditionNotSuperAdmin, dErrors.ConditionOf(err))

	// Non-admins cannot either.
	_, err = svc.AddAdmin(ctx, id.NewAddress(), id.NewAddress())
	assert.Equal(t, models.ConditionNotAdmin, dErrors.ConditionOf(err))

	require.NoError(t, svc.RemoveAdmin(ctx, superAdmin, operator))
	err = svc.RemoveAdmin(ctx, superAdmin, operator)
	assert.Equal(t, models.ConditionAdminNotFound, dErrors.ConditionOf(err))
}

func TestTemplateRegistration(t *testing.T) {
	ctx := context.Background()
	svc, _, superAdmin := newService(t)
	operator := id.NewAddress()
	_, err := svc.AddAdmin(ctx, superAdmin, operator)
	require.NoError(t, err)

	tmpl := models.Template{ID: 1, Kind: "trust_game", Name: "Trust Game", PlayerCount: 2, Enabled: true}

	// Any admin may register templates.
	registered, err := svc.RegisterTemplate(ctx, operator, tmpl)
	require.NoError(t, err)
	assert.False(t, registered.CreatedAt.IsZero())

	got, err := svc.GetTemplate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "trust_game", got.Kind)

	// Non-admins may not.
	_, err = svc.RegisterTemplate(ctx, id.NewAddress(), tmpl)
	assert.Equal(t, models.ConditionNotAdmin, dErrors.ConditionOf(err))

	// Invalid templates are rejected.
	bad := tmpl
	bad.PlayerCount = 0
	_, err = svc.RegisterTemplate(ctx, operator, bad)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.GetTemplate(ctx, 7)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestBootstrapSeedsSuperAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _, superAdmin := newService(t)

	admin, err := svc.GetAdmin(ctx, superAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.AdminRoleSuper, admin.Role)

	// Bootstrap is idempotent.
	require.NoError(t, svc.Bootstrap(ctx))
}
