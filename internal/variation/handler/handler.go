// Package handler exposes the variation engine over HTTP. Every route is
// scoped to an engine address; the handler resolves the engine and passes the
// authenticated caller explicitly into the engine operation.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bxhive/internal/variation/engine"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/httputil"
	"bxhive/pkg/requestcontext"
)

// Resolver resolves committed variation engines by address.
type Resolver interface {
	Lookup(addr id.Address) (*engine.Engine, error)
}

// Handler wires variation endpoints to engines resolved through the host.
type Handler struct {
	resolver        Resolver
	logger          *slog.Logger
	decisionLimiter func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithDecisionLimiter wraps the decision submission routes with a rate
// limiting middleware.
func WithDecisionLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.decisionLimiter = mw }
}

// New constructs a variation handler.
func New(resolver Resolver, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts variation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/variations/{address}", func(r chi.Router) {
		r.Get("/", h.HandleGetConfig)
		r.Get("/escrow", h.HandleGetEscrow)
		r.Post("/escrow", h.HandleDepositEscrow)
		r.Post("/escrow/withdraw", h.HandleWithdrawEscrow)
		r.Post("/subjects", h.HandleAddSubjects)
		r.Get("/subjects/{subject}", h.HandleGetSubject)
		r.Post("/registration/close", h.HandleCloseRegistration)
		r.Post("/matches", h.HandleCreateMatch)
		r.Get("/matches/{matchID}", h.HandleGetMatch)
		decisions := chi.Router(r)
		if h.decisionLimiter != nil {
			decisions = r.With(h.decisionLimiter)
		}
		decisions.Post("/matches/{matchID}/investment", h.HandleInvestorDecision)
		decisions.Post("/matches/{matchID}/return", h.HandleTrusteeDecision)
		r.Get("/players/{player}/match", h.HandleGetPlayerMatch)
	})
}

// resolve extracts the engine address from the route and looks it up.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid variation address"))
		return nil, false
	}
	eng, err := h.resolver.Lookup(addr)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return eng, true
}

// caller extracts the authenticated actor; auth middleware guarantees it is
// set on protected routes, so an empty actor means a wiring mistake.
func caller(w http.ResponseWriter, r *http.Request) (id.Address, bool) {
	actor := requestcontext.Actor(r.Context())
	if actor.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}

func matchIDParam(w http.ResponseWriter, r *http.Request) (id.MatchID, bool) {
	raw := chi.URLParam(r, "matchID")
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid match id"))
		return 0, false
	}
	return id.MatchID(parsed), true
}

// HandleGetConfig handles GET /variations/{address}.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromConfig(eng.Config()))
}

// HandleGetEscrow handles GET /variations/{address}/escrow.
func (h *Handler) HandleGetEscrow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EscrowResponse{Balance: eng.EscrowBalance()})
}

// HandleDepositEscrow handles POST /variations/{address}/escrow.
func (h *Handler) HandleDepositEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[DepositEscrowRequest](w, r)
	if !ok {
		return
	}

	amount, err := eng.DepositEscrow(ctx, actor, req.ParsedPaymentID())
	if err != nil {
		h.logger.WarnContext(ctx, "escrow deposit rejected",
			"variation", eng.Address(),
			"actor", actor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

// HandleWithdrawEscrow handles POST /variations/{address}/escrow/withdraw.
func (h *Handler) HandleWithdrawEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}

	amount, err := eng.WithdrawEscrow(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "escrow withdrawn",
		"variation", eng.Address(),
		"actor", actor,
		"amount", amount,
	)
	httputil.WriteJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

// HandleAddSubjects handles POST /variations/{address}/subjects.
func (h *Handler) HandleAddSubjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[AddSubjectsRequest](w, r)
	if !ok {
		return
	}

	if err := eng.AddSubjects(ctx, actor, req.ParsedSubjects()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetSubject handles GET /variations/{address}/subjects/{subject}.
func (h *Handler) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	subjectAddr, err := id.ParseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid subject address"))
		return
	}
	subject, err := eng.Subject(subjectAddr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubjectResponse{
		Enrolled: subject.Enrolled,
		Assigned: subject.Assigned,
	})
}

// HandleCloseRegistration handles POST /variations/{address}/registration/close.
func (h *Handler) HandleCloseRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}

	if err := eng.CloseRegistration(ctx, actor); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateMatch handles POST /variations/{address}/matches.
func (h *Handler) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CreateMatchRequest](w, r)
	if !ok {
		return
	}

	match, err := eng.CreateMatch(ctx, actor, req.ParsedInvestor(), req.ParsedTrustee())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromMatch(match))
}

// HandleGetMatch handles GET /variations/{address}/matches/{matchID}.
func (h *Handler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	match, err := eng.Match(matchID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatch(match))
}

// HandleInvestorDecision handles POST /variations/{address}/matches/{matchID}/investment.
func (h *Handler) HandleInvestorDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[DecisionRequest](w, r)
	if !ok {
		return
	}

	match, err := eng.SubmitInvestorDecision(ctx, actor, matchID, req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "investor decision rejected",
			"variation", eng.Address(),
			"match", matchID,
			"actor", actor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatch(match))
}

// HandleTrusteeDecision handles POST /variations/{address}/matches/{matchID}/return.
func (h *Handler) HandleTrusteeDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[DecisionRequest](w, r)
	if !ok {
		return
	}

	match, err := eng.SubmitTrusteeDecision(ctx, actor, matchID, req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "trustee decision rejected",
			"variation", eng.Address(),
			"match", matchID,
			"actor", actor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatch(match))
}

// HandleGetPlayerMatch handles GET /variations/{address}/players/{player}/match.
func (h *Handler) HandleGetPlayerMatch(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.resolve(w, r)
	if !ok {
		return
	}
	player, err := id.ParseAddress(chi.URLParam(r, "player"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid player address"))
		return
	}
	matchID, err := eng.PlayerMatch(player)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PlayerMatchResponse{MatchID: uint32(matchID)})
}
