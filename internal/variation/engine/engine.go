// Package engine implements the variation engine: one configured instance of
// the trust game, owning its escrow ledger, subject roster, and match state
// machines behind a single access-controlled boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"bxhive/internal/audit"
	"bxhive/internal/funds"
	"bxhive/internal/platform/metrics"
	"bxhive/internal/variation/escrow"
	"bxhive/internal/variation/models"
	"bxhive/internal/variation/roster"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/sentinel"
	"bxhive/pkg/requestcontext"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bxhive/variation/engine")

// Engine is one independently addressed variation instance.
//
// Every state-mutating operation holds the engine mutex end to end, so
// operations against one engine are serialized and indivisible (no partial
// state is observable mid-operation). Cross-engine access is read-only by
// address lookup through the Host.
type Engine struct {
	addr id.Address
	cfg  models.Config

	mu             sync.Mutex
	ledger         *escrow.Ledger
	roster         *roster.Roster
	matches        map[id.MatchID]*models.Match
	playerMatch    map[id.Address]id.MatchID
	matchCount     uint32
	completedCount uint32

	treasury funds.Treasury
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  audit.Publisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(e *Engine) { e.auditor = p }
}

// New instantiates an engine: validates the config, opens the roster, and
// zeroes the ledger and counters.
func New(addr id.Address, cfg models.Config, treasury funds.Treasury, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if treasury == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "treasury is required")
	}
	e := &Engine{
		addr:        addr,
		cfg:         cfg,
		ledger:      escrow.NewLedger(),
		roster:      roster.New(cfg.MaxSubjects),
		matches:     make(map[id.MatchID]*models.Match),
		playerMatch: make(map[id.Address]id.MatchID),
		treasury:    treasury,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the engine's own account address.
func (e *Engine) Address() id.Address {
	return e.addr
}

// Owner returns the owning experimenter's address.
func (e *Engine) Owner() id.Address {
	return e.cfg.Owner
}

// RecordEscrow books funds already delivered to the engine's account. Only
// the catalog's spawn protocol calls this, after forwarding the attached
// payment; owner deposits go through DepositEscrow.
func (e *Engine) RecordEscrow(amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Fund(amount)
}

// DepositEscrow redeems a payment addressed to the engine and books it into
// the escrow ledger. Owner only.
func (e *Engine) DepositEscrow(ctx context.Context, caller id.Address, paymentID funds.PaymentID) (uint64, error) {
	if err := e.requireOwner(caller); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	payment, err := e.treasury.Redeem(ctx, paymentID, e.addr)
	if err != nil {
		return 0, translatePaymentErr(err)
	}
	if err := e.ledger.Fund(payment.Amount); err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.EscrowDeposited.Add(float64(payment.Amount))
	}
	e.emit(ctx, audit.Event{
		Action: audit.ActionEscrowDeposited,
		Actor:  caller,
		Amount: payment.Amount,
	})
	return payment.Amount, nil
}

// AddSubjects enrolls a batch of subjects, all-or-nothing. Owner only,
// registration must still be open.
func (e *Engine) AddSubjects(ctx context.Context, caller id.Address, subjects []id.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if len(subjects) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one subject is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roster.EnrollAll(subjects); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.SubjectsEnrolled.Add(float64(len(subjects)))
	}
	for _, subject := range subjects {
		e.emit(ctx, audit.Event{
			Action:  audit.ActionSubjectsEnrolled,
			Actor:   caller,
			Subject: subject,
		})
	}
	return nil
}

// CloseRegistration ends enrollment, one way. Owner only; a second call
// fails with not_active.
func (e *Engine) CloseRegistration(ctx context.Context, caller id.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roster.Close(); err != nil {
		return err
	}
	e.emit(ctx, audit.Event{
		Action: audit.ActionRegistrationClosed,
		Actor:  caller,
	})
	return nil
}

// CreateMatch reserves both subjects and opens a match in the investor
// decision phase. Owner only.
func (e *Engine) CreateMatch(ctx context.Context, caller, investor, trustee id.Address) (models.Match, error) {
	if err := e.requireOwner(caller); err != nil {
		return models.Match{}, err
	}
	if investor == trustee {
		return models.Match{}, dErrors.New(dErrors.CodeInvalidInput, "investor and trustee must differ")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roster.ReservePair(investor, trustee); err != nil {
		return models.Match{}, err
	}

	matchID := id.MatchID(e.matchCount)
	e.matchCount++
	match := &models.Match{
		ID:        matchID,
		Investor:  investor,
		Trustee:   trustee,
		Phase:     models.PhaseInvestorDecision,
		CreatedAt: requestcontext.Now(ctx),
	}
	e.matches[matchID] = match
	e.playerMatch[investor] = matchID
	e.playerMatch[trustee] = matchID

	if e.metrics != nil {
		e.metrics.MatchesCreated.Inc()
	}
	e.emit(ctx, audit.Event{
		Action: audit.ActionMatchCreated,
		Actor:  caller,
		Match:  uint32(matchID),
	})
	return *match, nil
}

// SubmitInvestorDecision records the investment and advances the match to
// the trustee decision phase. Investor only.
func (e *Engine) SubmitInvestorDecision(ctx context.Context, caller id.Address, matchID id.MatchID, investment uint64) (models.Match, error) {
	ctx, span := tracer.Start(ctx, "engine.SubmitInvestorDecision", trace.WithAttributes(
		attribute.String("variation.address", e.addr.String()),
		attribute.Int64("match.id", int64(matchID)),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	match, err := e.matchLocked(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if caller != match.Investor {
		return models.Match{}, wrongCaller("investor")
	}
	if match.Phase != models.PhaseInvestorDecision {
		return models.Match{}, wrongPhase(models.PhaseInvestorDecision, match.Phase)
	}
	if investment > e.cfg.E1 {
		return models.Match{}, dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionExceedsEndowment,
			fmt.Sprintf("investment %d exceeds endowment %d", investment, e.cfg.E1))
	}
	if investment%e.cfg.Unit != 0 {
		return models.Match{}, notUnitMultiple(investment, e.cfg.Unit)
	}

	match.Investment = investment
	match.Phase = models.PhaseTrusteeDecision

	e.emit(ctx, audit.Event{
		Action: audit.ActionInvestmentSubmitted,
		Actor:  caller,
		Match:  uint32(matchID),
		Amount: investment,
	})
	return *match, nil
}

// SubmitTrusteeDecision records the returned amount, settles both payouts
// from escrow, and completes the match. Trustee only.
//
// The ledger disbursement is checked before any mutation: there is no
// rollback of the pairing or investment steps, so a match that cannot be
// covered fails here with insufficient_escrow and stays in the trustee
// decision phase.
func (e *Engine) SubmitTrusteeDecision(ctx context.Context, caller id.Address, matchID id.MatchID, returnAmount uint64) (models.Match, error) {
	ctx, span := tracer.Start(ctx, "engine.SubmitTrusteeDecision", trace.WithAttributes(
		attribute.String("variation.address", e.addr.String()),
		attribute.Int64("match.id", int64(matchID)),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	match, err := e.matchLocked(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if caller != match.Trustee {
		return models.Match{}, wrongCaller("trustee")
	}
	if match.Phase != models.PhaseTrusteeDecision {
		return models.Match{}, wrongPhase(models.PhaseTrusteeDecision, match.Phase)
	}

	maxReturn := match.Investment * e.cfg.Multiplier
	if returnAmount > maxReturn {
		return models.Match{}, dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionExceedsMaximum,
			fmt.Sprintf("return %d exceeds maximum %d", returnAmount, maxReturn))
	}
	if returnAmount%e.cfg.Unit != 0 {
		return models.Match{}, notUnitMultiple(returnAmount, e.cfg.Unit)
	}

	// Both payouts are non-negative by the bounds above: the investor gets
	// back at least e1 − investment, the trustee keeps at least e2.
	investorPayout := e.cfg.E1 - match.Investment + returnAmount
	trusteePayout := e.cfg.E2 + maxReturn - returnAmount
	total := investorPayout + trusteePayout

	if err := e.ledger.Disburse(total); err != nil {
		return models.Match{}, err
	}
	if err := e.payout(ctx, match.Investor, investorPayout); err != nil {
		return models.Match{}, err
	}
	if err := e.payout(ctx, match.Trustee, trusteePayout); err != nil {
		return models.Match{}, err
	}

	match.ReturnAmount = returnAmount
	match.InvestorPayout = investorPayout
	match.TrusteePayout = trusteePayout
	match.Phase = models.PhaseCompleted
	match.CompletedAt = requestcontext.Now(ctx)
	match.PaidOut = true
	e.completedCount++

	if e.metrics != nil {
		e.metrics.MatchesCompleted.Inc()
		e.metrics.EscrowDisbursed.Add(float64(total))
	}
	e.emit(ctx, audit.Event{
		Action: audit.ActionMatchCompleted,
		Actor:  caller,
		Match:  uint32(matchID),
		Amount: total,
	})
	return *match, nil
}

// WithdrawEscrow disburses the entire remaining balance to the owner. Fails
// with matches_pending while any match is unsettled and no_remaining_escrow
// when the balance is already zero.
func (e *Engine) WithdrawEscrow(ctx context.Context, caller id.Address) (uint64, error) {
	if err := e.requireOwner(caller); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completedCount != e.matchCount {
		return 0, dErrors.NewCondition(dErrors.CodeResourceExhausted, models.ConditionMatchesPending,
			fmt.Sprintf("%d of %d matches still pending", e.matchCount-e.completedCount, e.matchCount))
	}
	remaining := e.ledger.Balance()
	if remaining == 0 {
		return 0, dErrors.NewCondition(dErrors.CodeResourceExhausted, models.ConditionNoRemainingEscrow,
			"no escrow left to withdraw")
	}
	if err := e.ledger.Disburse(remaining); err != nil {
		return 0, err
	}
	if err := e.payout(ctx, e.cfg.Owner, remaining); err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.EscrowDisbursed.Add(float64(remaining))
	}
	e.emit(ctx, audit.Event{
		Action: audit.ActionEscrowWithdrawn,
		Actor:  caller,
		Amount: remaining,
	})
	return remaining, nil
}

// Config returns the immutable parameters plus the lifecycle status.
func (e *Engine) Config() models.ConfigView {
	status := models.StatusActive
	if !e.roster.Open() {
		status = models.StatusClosed
	}
	return models.ConfigView{Config: e.cfg, Status: status}
}

// Match returns a match by ID.
func (e *Engine) Match(matchID id.MatchID) (models.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	match, err := e.matchLocked(matchID)
	if err != nil {
		return models.Match{}, err
	}
	return *match, nil
}

// PlayerMatch returns the match ID a participant is assigned to.
func (e *Engine) PlayerMatch(player id.Address) (id.MatchID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	matchID, ok := e.playerMatch[player]
	if !ok {
		return 0, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no match for player %s", player))
	}
	return matchID, nil
}

// Subject returns a participant's enrollment record.
func (e *Engine) Subject(addr id.Address) (models.Subject, error) {
	return e.roster.Subject(addr)
}

// EscrowBalance returns the current escrow balance.
func (e *Engine) EscrowBalance() uint64 {
	return e.ledger.Balance()
}

// MatchCounts returns (total, completed) match counters.
func (e *Engine) MatchCounts() (uint32, uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matchCount, e.completedCount
}

func (e *Engine) matchLocked(matchID id.MatchID) (*models.Match, error) {
	match, ok := e.matches[matchID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("match %d not found", matchID))
	}
	return match, nil
}

func (e *Engine) requireOwner(caller id.Address) error {
	if caller != e.cfg.Owner {
		return dErrors.NewCondition(dErrors.CodeForbidden, models.ConditionWrongCaller,
			"caller is not the variation owner")
	}
	return nil
}

// payout transfers settled funds out of the engine account. A zero payout
// is a valid settlement outcome (nothing to move).
func (e *Engine) payout(ctx context.Context, to id.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.treasury.Transfer(ctx, e.addr, to, amount); err != nil {
		// The ledger never disburses more than was deposited, so the engine
		// account must be able to cover it; anything else is corruption.
		return dErrors.Wrap(err, dErrors.CodeInternal, "payout transfer failed")
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	event.Engine = e.addr
	event.Group = uint32(e.cfg.Group)
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := e.auditor.Emit(ctx, event); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func wrongCaller(role string) error {
	return dErrors.NewCondition(dErrors.CodeForbidden, models.ConditionWrongCaller,
		fmt.Sprintf("caller is not the match %s", role))
}

func wrongPhase(want, got models.Phase) error {
	return dErrors.NewCondition(dErrors.CodeInvalidState, models.ConditionWrongPhase,
		fmt.Sprintf("match is in %s, expected %s", got, want))
}

func notUnitMultiple(amount, unit uint64) error {
	return dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionNotUnitMultiple,
		fmt.Sprintf("%d is not a multiple of unit %d", amount, unit))
}

// translatePaymentErr maps treasury sentinels onto the domain error surface.
func translatePaymentErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "payment not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "payment already settled")
	case errors.Is(err, funds.ErrWrongReceiver):
		return dErrors.NewCondition(dErrors.CodeInvalidInput, models.ConditionWrongReceiver,
			"payment is not addressed to this variation")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment redemption failed")
	}
}
