// Package handler exposes the experiment catalog over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bxhive/internal/catalog/models"
	"bxhive/internal/funds"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/httputil"
	"bxhive/pkg/requestcontext"
)

// Service defines the catalog operations the handler depends on.
type Service interface {
	CreateGroup(ctx context.Context, caller id.Address, name string) (*models.ExperimentGroup, error)
	SpawnVariation(ctx context.Context, caller id.Address, groupID id.GroupID, label string, params models.SpawnParams, paymentID funds.PaymentID) (*models.VariationRecord, error)
	CreateGroupWithVariation(ctx context.Context, caller id.Address, name, label string, params models.SpawnParams, paymentID funds.PaymentID) (*models.ExperimentGroup, *models.VariationRecord, error)
	GetGroup(ctx context.Context, groupID id.GroupID) (*models.ExperimentGroup, error)
	ListGroups(ctx context.Context) ([]*models.ExperimentGroup, error)
	GetVariation(ctx context.Context, key id.VariationKey) (*models.VariationRecord, error)
	ListVariations(ctx context.Context, groupID id.GroupID) ([]*models.VariationRecord, error)
}

// Handler wires catalog endpoints to the catalog service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a catalog handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts catalog endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/experiments", func(r chi.Router) {
		r.Post("/", h.HandleCreateGroup)
		r.Get("/", h.HandleListGroups)
		r.Post("/with-variation", h.HandleCreateGroupWithVariation)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Get("/", h.HandleGetGroup)
			r.Post("/variations", h.HandleSpawnVariation)
			r.Get("/variations", h.HandleListVariations)
			r.Get("/variations/{variationID}", h.HandleGetVariation)
		})
	})
}

func caller(w http.ResponseWriter, r *http.Request) (id.Address, bool) {
	actor := requestcontext.Actor(r.Context())
	if actor.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}

func groupIDParam(w http.ResponseWriter, r *http.Request) (id.GroupID, bool) {
	parsed, err := strconv.ParseUint(chi.URLParam(r, "groupID"), 10, 32)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid group id"))
		return 0, false
	}
	return id.GroupID(parsed), true
}

// HandleCreateGroup handles POST /experiments.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CreateGroupRequest](w, r)
	if !ok {
		return
	}

	group, err := h.service.CreateGroup(ctx, actor, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromGroup(group))
}

// HandleListGroups handles GET /experiments.
func (h *Handler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]GroupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, FromGroup(group))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleGetGroup handles GET /experiments/{groupID}.
func (h *Handler) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromGroup(group))
}

// HandleSpawnVariation handles POST /experiments/{groupID}/variations.
func (h *Handler) HandleSpawnVariation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[SpawnRequest](w, r)
	if !ok {
		return
	}

	rec, err := h.service.SpawnVariation(ctx, actor, groupID, req.Label, req.Params(), req.ParsedPaymentID())
	if err != nil {
		h.logger.WarnContext(ctx, "spawn rejected",
			"group", groupID,
			"actor", actor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromVariation(rec))
}

// HandleCreateGroupWithVariation handles POST /experiments/with-variation.
func (h *Handler) HandleCreateGroupWithVariation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CreateWithVariationRequest](w, r)
	if !ok {
		return
	}

	group, rec, err := h.service.CreateGroupWithVariation(ctx, actor, req.Name, req.Label, req.Params(), req.ParsedPaymentID())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, GroupWithVariationResponse{
		Group:     FromGroup(group),
		Variation: FromVariation(rec),
	})
}

// HandleListVariations handles GET /experiments/{groupID}/variations.
func (h *Handler) HandleListVariations(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	recs, err := h.service.ListVariations(r.Context(), groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]VariationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromVariation(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleGetVariation handles GET /experiments/{groupID}/variations/{variationID}.
func (h *Handler) HandleGetVariation(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	parsed, err := strconv.ParseUint(chi.URLParam(r, "variationID"), 10, 32)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid variation id"))
		return
	}
	rec, err := h.service.GetVariation(r.Context(), id.VariationKey{
		Group:     groupID,
		Variation: id.VariationID(parsed),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromVariation(rec))
}
