// Package service implements the experiment catalog: experiment groups and
// the atomic spawn-and-fund protocol that brings variation engines to life.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"bxhive/internal/audit"
	"bxhive/internal/catalog/models"
	"bxhive/internal/funds"
	"bxhive/internal/platform/metrics"
	"bxhive/internal/variation/engine"
	variationmodels "bxhive/internal/variation/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/sentinel"
	"bxhive/pkg/requestcontext"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bxhive/catalog")

// Store persists experiment groups and variation records.
//
// ID assignment is optimistic: the service predicts the next sequential ID
// and the store rejects a stale prediction with sentinel.ErrConflict, which
// keeps the insert-plus-counter-bump atomic in every backend.
type Store interface {
	// NextGroupID reports the ID the next created group must carry.
	NextGroupID(ctx context.Context) (id.GroupID, error)

	// CreateGroup inserts the group and bumps the group counter in one
	// atomic step. Fails with sentinel.ErrConflict when group.ID is not the
	// current counter value.
	CreateGroup(ctx context.Context, group *models.ExperimentGroup) error

	GetGroup(ctx context.Context, groupID id.GroupID) (*models.ExperimentGroup, error)
	ListGroups(ctx context.Context) ([]*models.ExperimentGroup, error)

	// CreateVariation inserts the record and bumps the group's variation
	// counter in one atomic step. Fails with sentinel.ErrNotFound for an
	// unknown group and sentinel.ErrConflict when rec.Key.Variation is not
	// the group's current counter value.
	CreateVariation(ctx context.Context, rec *models.VariationRecord) error

	// CreateGroupWithVariation performs CreateGroup and CreateVariation as
	// one atomic step.
	CreateGroupWithVariation(ctx context.Context, group *models.ExperimentGroup, rec *models.VariationRecord) error

	GetVariation(ctx context.Context, key id.VariationKey) (*models.VariationRecord, error)
	ListVariations(ctx context.Context, groupID id.GroupID) ([]*models.VariationRecord, error)
}

// Host stages, publishes, and discards variation engines.
type Host interface {
	Stage(cfg variationmodels.Config) (*engine.Engine, error)
	Commit(addr id.Address) error
	Discard(addr id.Address)
	Lookup(addr id.Address) (*engine.Engine, error)
}

// Service coordinates the catalog's store, the engine host, and the funds
// primitive.
type Service struct {
	store    Store
	host     Host
	treasury funds.Treasury

	// addr is the catalog's own account: spawn payments must name it as
	// receiver and escrow passes through it on the way to the engine.
	addr      id.Address
	directory id.Address

	// mu serializes group creation and spawning so the optimistic ID
	// predictions hold within this process.
	mu sync.Mutex

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

// WithDirectory records the directory's address for informational linkage.
func WithDirectory(addr id.Address) Option {
	return func(s *Service) { s.directory = addr }
}

// New constructs the catalog service under its own account address.
func New(store Store, host Host, treasury funds.Treasury, addr id.Address, opts ...Option) *Service {
	s := &Service{
		store:    store,
		host:     host,
		treasury: treasury,
		addr:     addr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the catalog's own account address.
func (s *Service) Address() id.Address {
	return s.addr
}

// Directory returns the linked directory address, if any.
func (s *Service) Directory() id.Address {
	return s.directory
}

// CreateGroup opens a new experiment group owned by the caller.
func (s *Service) CreateGroup(ctx context.Context, caller id.Address, name string) (*models.ExperimentGroup, error) {
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.buildGroup(ctx, caller, name)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, translateStoreErr(err, "create experiment group")
	}

	if s.metrics != nil {
		s.metrics.ExperimentsCreated.Inc()
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionExperimentCreated,
		Actor:  caller,
		Group:  uint32(group.ID),
	})
	s.logger.InfoContext(ctx, "experiment group created",
		"group", group.ID,
		"owner", caller,
	)
	return group, nil
}

// SpawnVariation instantiates a variation under an existing group, funded by
// the attached payment. The whole protocol is atomic: on any failure the
// payment value is returned to the payer, the staged engine is discarded,
// and no record or counter change is visible.
func (s *Service) SpawnVariation(ctx context.Context, caller id.Address, groupID id.GroupID, label string, params models.SpawnParams, paymentID funds.PaymentID) (*models.VariationRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.SpawnVariation", trace.WithAttributes(
		attribute.Int64("group.id", int64(groupID)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, groupLookupErr(err, groupID)
	}
	if group.Owner != caller {
		return nil, dErrors.NewCondition(dErrors.CodeForbidden, models.ConditionNotGroupOwner,
			"caller does not own the experiment group")
	}

	rec, err := s.spawn(ctx, caller, group, id.VariationID(group.VariationCount), label, params, paymentID, nil)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateGroupWithVariation opens a group and spawns its first variation in
// one atomic operation: either both exist afterwards or neither does.
func (s *Service) CreateGroupWithVariation(ctx context.Context, caller id.Address, name, label string, params models.SpawnParams, paymentID funds.PaymentID) (*models.ExperimentGroup, *models.VariationRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.CreateGroupWithVariation")
	defer span.End()

	if caller.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "caller is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.buildGroup(ctx, caller, name)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.spawn(ctx, caller, group, 0, label, params, paymentID, group)
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.ExperimentsCreated.Inc()
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionExperimentCreated,
		Actor:  caller,
		Group:  uint32(group.ID),
	})
	group.VariationCount = 1
	return group, rec, nil
}

// spawn runs the shared spawn protocol. When newGroup is non-nil the store
// commit also creates the group; otherwise the group already exists.
//
// Steps: stage engine, redeem the payment (receiver-verified), forward the
// full amount to the engine, commit the record in one store call, publish
// the engine. Each failure point compensates everything before it.
func (s *Service) spawn(ctx context.Context, caller id.Address, group *models.ExperimentGroup, varID id.VariationID, label string, params models.SpawnParams, paymentID funds.PaymentID, newGroup *models.ExperimentGroup) (*models.VariationRecord, error) {
	cfg := variationmodels.Config{
		Group:       group.ID,
		Variation:   varID,
		Owner:       caller,
		E1:          params.E1,
		E2:          params.E2,
		Multiplier:  params.Multiplier,
		Unit:        params.Unit,
		AssetID:     params.AssetID,
		MaxSubjects: params.MaxSubjects,
	}
	eng, err := s.host.Stage(cfg)
	if err != nil {
		return nil, err
	}

	payment, err := s.treasury.Redeem(ctx, paymentID, s.addr)
	if err != nil {
		s.host.Discard(eng.Address())
		return nil, translatePaymentErr(err)
	}

	// From here on the payment value sits in catalog custody; every failure
	// path must hand it back to the payer.
	if err := s.treasury.Transfer(ctx, s.addr, eng.Address(), payment.Amount); err != nil {
		s.rollback(ctx, eng.Address(), s.addr, payment)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "forward escrow to engine")
	}
	if err := eng.RecordEscrow(payment.Amount); err != nil {
		s.rollback(ctx, eng.Address(), eng.Address(), payment)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record escrow")
	}

	rec := &models.VariationRecord{
		Key:       id.VariationKey{Group: group.ID, Variation: varID},
		Address:   eng.Address(),
		Label:     label,
		Escrow:    payment.Amount,
		CreatedAt: requestcontext.Now(ctx),
	}
	if newGroup != nil {
		err = s.store.CreateGroupWithVariation(ctx, newGroup, rec)
	} else {
		err = s.store.CreateVariation(ctx, rec)
	}
	if err != nil {
		s.rollback(ctx, eng.Address(), eng.Address(), payment)
		return nil, translateStoreErr(err, "commit variation record")
	}

	if err := s.host.Commit(eng.Address()); err != nil {
		// The record is already durable; a host commit failure means the
		// staged engine vanished, which should be impossible under the lock.
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "publish engine")
	}

	if s.metrics != nil {
		s.metrics.VariationsSpawned.Inc()
		s.metrics.EscrowDeposited.Add(float64(payment.Amount))
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionVariationSpawned,
		Actor:  caller,
		Engine: eng.Address(),
		Group:  uint32(group.ID),
		Amount: payment.Amount,
	})
	s.logger.InfoContext(ctx, "variation spawned",
		"group", group.ID,
		"variation", varID,
		"engine", eng.Address(),
		"escrow", payment.Amount,
	)
	return rec, nil
}

// rollback compensates a failed spawn: the payment value held at holder goes
// back to the payer and the staged engine is discarded.
func (s *Service) rollback(ctx context.Context, engineAddr, holder id.Address, payment *funds.Payment) {
	if err := s.treasury.Transfer(ctx, holder, payment.From, payment.Amount); err != nil {
		// Funds stranded; surface loudly, the operator has to reconcile.
		s.logger.ErrorContext(ctx, "spawn rollback transfer failed",
			"holder", holder,
			"payer", payment.From,
			"amount", payment.Amount,
			"error", err,
		)
	}
	s.host.Discard(engineAddr)
	if s.metrics != nil {
		s.metrics.SpawnFailures.Inc()
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionSpawnRolledBack,
		Engine: engineAddr,
		Amount: payment.Amount,
	})
}

func (s *Service) buildGroup(ctx context.Context, owner id.Address, name string) (*models.ExperimentGroup, error) {
	nextID, err := s.store.NextGroupID(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "allocate group id")
	}
	return &models.ExperimentGroup{
		ID:        nextID,
		Owner:     owner,
		Name:      name,
		CreatedAt: requestcontext.Now(ctx),
	}, nil
}

// GetGroup returns an experiment group.
func (s *Service) GetGroup(ctx context.Context, groupID id.GroupID) (*models.ExperimentGroup, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, groupLookupErr(err, groupID)
	}
	return group, nil
}

// ListGroups returns all experiment groups.
func (s *Service) ListGroups(ctx context.Context) ([]*models.ExperimentGroup, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list experiment groups")
	}
	return groups, nil
}

// GetVariation returns a variation record by compound key.
func (s *Service) GetVariation(ctx context.Context, key id.VariationKey) (*models.VariationRecord, error) {
	rec, err := s.store.GetVariation(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("variation %d/%d not found", key.Group, key.Variation))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get variation record")
	}
	return rec, nil
}

// ListVariations returns a group's variation records in spawn order.
func (s *Service) ListVariations(ctx context.Context, groupID id.GroupID) ([]*models.VariationRecord, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, groupLookupErr(err, groupID)
	}
	recs, err := s.store.ListVariations(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list variation records")
	}
	return recs, nil
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

func groupLookupErr(err error, groupID id.GroupID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NewCondition(dErrors.CodeNotFound, models.ConditionGroupNotFound,
			fmt.Sprintf("experiment group %d not found", groupID))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "get experiment group")
}

func translateStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewCondition(dErrors.CodeConflict, models.ConditionSpawnConflict,
			"concurrent catalog mutation, retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

func translatePaymentErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "payment not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "payment already settled")
	case errors.Is(err, funds.ErrWrongReceiver):
		return dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionWrongReceiver,
			"payment is not addressed to the catalog")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment redemption failed")
	}
}
