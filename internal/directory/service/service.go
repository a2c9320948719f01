// Package service implements the directory: user registration, admin
// bookkeeping, and the experiment template registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bxhive/internal/audit"
	"bxhive/internal/directory/models"
	"bxhive/internal/funds"
	"bxhive/internal/platform/metrics"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/sentinel"
	"bxhive/pkg/requestcontext"
)

// Store persists users, admins, and templates.
type Store interface {
	// CreateUser assigns the next sequential user ID and inserts the user.
	// Fails with sentinel.ErrAlreadyUsed when the address is registered.
	CreateUser(ctx context.Context, user *models.User) error

	GetUserByAddress(ctx context.Context, addr id.Address) (*models.User, error)
	GetUserByID(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// PutAdmin inserts or replaces an admin record.
	PutAdmin(ctx context.Context, admin *models.Admin) error
	GetAdmin(ctx context.Context, addr id.Address) (*models.Admin, error)
	// RemoveAdmin fails with sentinel.ErrNotFound for an unknown admin.
	RemoveAdmin(ctx context.Context, addr id.Address) error

	PutTemplate(ctx context.Context, tmpl *models.Template) error
	GetTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
}

// Service coordinates the directory store and the faucet.
type Service struct {
	store      Store
	treasury   funds.Treasury
	superAdmin id.Address

	// faucetAmount is minted to every freshly registered account so
	// participants can fund payments without an external on-ramp.
	faucetAmount uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithFaucet sets the starting balance minted at registration. Zero
// disables the faucet.
func WithFaucet(amount uint64) Option {
	return func(s *Service) { s.faucetAmount = amount }
}

// New constructs the directory service. superAdmin is the address that holds
// the bootstrap super-admin role once Bootstrap has run.
func New(store Store, treasury funds.Treasury, superAdmin id.Address, opts ...Option) *Service {
	s := &Service{
		store:      store,
		treasury:   treasury,
		superAdmin: superAdmin,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap seeds the super admin record. Idempotent; run at startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.superAdmin.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "super admin address is required")
	}
	admin := &models.Admin{
		Address: s.superAdmin,
		Role:    models.AdminRoleSuper,
		AddedAt: requestcontext.Now(ctx),
	}
	if err := s.store.PutAdmin(ctx, admin); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "seed super admin")
	}
	return nil
}

// SuperAdmin returns the bootstrap super-admin address.
func (s *Service) SuperAdmin() id.Address {
	return s.superAdmin
}

// Register creates a user under a fresh address, assigns the next sequential
// user ID, and seeds the account from the faucet.
func (s *Service) Register(ctx context.Context, role models.Role, name string) (*models.User, error) {
	if !role.Valid() {
		return nil, dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionInvalidRole,
			fmt.Sprintf("unknown role %q", role))
	}
	user := &models.User{
		Address:   id.NewAddress(),
		Role:      role,
		Name:      name,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.NewCondition(dErrors.CodeConflict, models.ConditionAlreadyRegistered,
				"address is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create user")
	}

	if s.faucetAmount > 0 {
		if err := s.treasury.Mint(ctx, user.Address, s.faucetAmount); err != nil {
			s.logger.ErrorContext(ctx, "faucet mint failed",
				"user", user.ID,
				"address", user.Address,
				"error", err,
			)
		}
	}

	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionUserRegistered,
		Actor:   user.Address,
		Subject: user.Address,
	})
	s.logger.InfoContext(ctx, "user registered",
		"user", user.ID,
		"role", user.Role,
	)
	return user, nil
}

// GetUser returns a user by address.
func (s *Service) GetUser(ctx context.Context, addr id.Address) (*models.User, error) {
	user, err := s.store.GetUserByAddress(ctx, addr)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

// GetUserByID returns a user by sequential ID.
func (s *Service) GetUserByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

// AccountBalance returns the treasury balance for a registered address.
func (s *Service) AccountBalance(ctx context.Context, addr id.Address) (uint64, error) {
	if _, err := s.store.GetUserByAddress(ctx, addr); err != nil {
		return 0, userLookupErr(err)
	}
	balance, err := s.treasury.Balance(ctx, addr)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "account balance")
	}
	return balance, nil
}

// ListUsers returns all registered users in registration order.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list users")
	}
	return users, nil
}

// AddAdmin appoints an operator admin. Super admin only.
func (s *Service) AddAdmin(ctx context.Context, caller, addr id.Address) (*models.Admin, error) {
	if err := s.requireSuperAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "admin address is required")
	}
	admin := &models.Admin{
		Address: addr,
		Role:    models.AdminRoleOperator,
		AddedAt: requestcontext.Now(ctx),
	}
	if err := s.store.PutAdmin(ctx, admin); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "add admin")
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionAdminAdded,
		Actor:   caller,
		Subject: addr,
	})
	return admin, nil
}

// RemoveAdmin revokes an admin. Super admin only.
func (s *Service) RemoveAdmin(ctx context.Context, caller, addr id.Address) error {
	if err := s.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.store.RemoveAdmin(ctx, addr); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.NewCondition(dErrors.CodeNotFound, models.ConditionAdminNotFound,
				"admin not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "remove admin")
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionAdminRemoved,
		Actor:   caller,
		Subject: addr,
	})
	return nil
}

// GetAdmin returns an admin record.
func (s *Service) GetAdmin(ctx context.Context, addr id.Address) (*models.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewCondition(dErrors.CodeNotFound, models.ConditionAdminNotFound,
				"admin not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get admin")
	}
	return admin, nil
}

// RegisterTemplate registers or replaces an experiment template. Any admin.
func (s *Service) RegisterTemplate(ctx context.Context, caller id.Address, tmpl models.Template) (*models.Template, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	tmpl.CreatedAt = requestcontext.Now(ctx)
	if err := s.store.PutTemplate(ctx, &tmpl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "register template")
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionTemplateRegistered,
		Actor:  caller,
	})
	return &tmpl, nil
}

// GetTemplate returns a template by ID.
func (s *Service) GetTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("template %d not found", templateID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get template")
	}
	return tmpl, nil
}

// ListTemplates returns all registered templates.
func (s *Service) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	tmpls, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list templates")
	}
	return tmpls, nil
}

func (s *Service) requireSuperAdmin(ctx context.Context, caller id.Address) error {
	admin, err := s.lookupAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if admin.Role != models.AdminRoleSuper {
		return dErrors.NewCondition(dErrors.CodeForbidden, models.ConditionNotSuperAdmin,
			"caller is not the super admin")
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, caller id.Address) error {
	_, err := s.lookupAdmin(ctx, caller)
	return err
}

func (s *Service) lookupAdmin(ctx context.Context, caller id.Address) (*models.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewCondition(dErrors.CodeForbidden, models.ConditionNotAdmin,
				"caller is not an admin")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get admin")
	}
	return admin, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func userLookupErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "get user")
}
