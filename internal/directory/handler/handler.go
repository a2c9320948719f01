// Package handler exposes the directory over HTTP: self-service registration
// plus admin-gated directory management.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bxhive/internal/directory/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
	"bxhive/pkg/platform/httputil"
	"bxhive/pkg/requestcontext"
)

// Service defines the directory operations the handler depends on.
type Service interface {
	Register(ctx context.Context, role models.Role, name string) (*models.User, error)
	GetUser(ctx context.Context, addr id.Address) (*models.User, error)
	GetUserByID(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	AccountBalance(ctx context.Context, addr id.Address) (uint64, error)
	AddAdmin(ctx context.Context, caller, addr id.Address) (*models.Admin, error)
	RemoveAdmin(ctx context.Context, caller, addr id.Address) error
	RegisterTemplate(ctx context.Context, caller id.Address, tmpl models.Template) (*models.Template, error)
	GetTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
}

// TokenIssuer mints access tokens for freshly registered users.
type TokenIssuer interface {
	GenerateAccessToken(actor id.Address, role string) (string, error)
}

// Handler wires directory endpoints to the directory service.
type Handler struct {
	service Service
	tokens  TokenIssuer
	logger  *slog.Logger
}

// New constructs a directory handler.
func New(service Service, tokens TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, logger: logger}
}

// Register mounts the public directory endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/directory", func(r chi.Router) {
		r.Post("/users", h.HandleRegister)
		r.Get("/users", h.HandleListUsers)
		r.Get("/users/{address}", h.HandleGetUser)
		r.Get("/users/{address}/balance", h.HandleGetBalance)
		r.Get("/users/id/{userID}", h.HandleGetUserByID)
		r.Get("/templates", h.HandleListTemplates)
		r.Get("/templates/{templateID}", h.HandleGetTemplate)
	})
}

// RegisterAdmin mounts the admin-gated endpoints; the caller wraps the
// router with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/directory", func(r chi.Router) {
		r.Post("/admins", h.HandleAddAdmin)
		r.Delete("/admins/{address}", h.HandleRemoveAdmin)
		r.Post("/templates", h.HandleRegisterTemplate)
	})
}

// RegisterResponse is the wire form of a completed registration.
type RegisterResponse struct {
	UserID  uint32 `json:"user_id"`
	Address string `json:"address"`
	Role    string `json:"role"`
	Token   string `json:"token"`
}

// UserResponse is the wire form of a user record.
type UserResponse struct {
	UserID  uint32 `json:"user_id"`
	Address string `json:"address"`
	Role    string `json:"role"`
	Name    string `json:"name"`
}

func fromUser(u *models.User) UserResponse {
	return UserResponse{
		UserID:  uint32(u.ID),
		Address: u.Address.String(),
		Role:    string(u.Role),
		Name:    u.Name,
	}
}

// HandleRegister handles POST /directory/users.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[RegisterRequest](w, r)
	if !ok {
		return
	}

	user, err := h.service.Register(ctx, models.Role(req.Role), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token, err := h.tokens.GenerateAccessToken(user.Address, string(user.Role))
	if err != nil {
		h.logger.ErrorContext(ctx, "token generation failed", "user", user.ID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue access token"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{
		UserID:  uint32(user.ID),
		Address: user.Address.String(),
		Role:    string(user.Role),
		Token:   token,
	})
}

// HandleGetUser handles GET /directory/users/{address}.
func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid user address"))
		return
	}
	user, err := h.service.GetUser(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUser(user))
}

// BalanceResponse is the wire form of an account balance.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// HandleGetBalance handles GET /directory/users/{address}/balance.
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid user address"))
		return
	}
	balance, err := h.service.AccountBalance(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{
		Address: addr.String(),
		Balance: balance,
	})
}

// HandleGetUserByID handles GET /directory/users/id/{userID}.
func (h *Handler) HandleGetUserByID(w http.ResponseWriter, r *http.Request) {
	parsed, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid user id"))
		return
	}
	user, err := h.service.GetUserByID(r.Context(), id.UserID(parsed))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUser(user))
}

// HandleListUsers handles GET /directory/users.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, fromUser(user))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleAddAdmin handles POST /admin/directory/admins.
func (h *Handler) HandleAddAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	req, ok := httputil.Decode[AddAdminRequest](w, r)
	if !ok {
		return
	}

	admin, err := h.service.AddAdmin(ctx, actor, req.ParsedAddress())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, admin)
}

// HandleRemoveAdmin handles DELETE /admin/directory/admins/{address}.
func (h *Handler) HandleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid admin address"))
		return
	}

	if err := h.service.RemoveAdmin(ctx, actor, addr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegisterTemplate handles POST /admin/directory/templates.
func (h *Handler) HandleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	req, ok := httputil.Decode[RegisterTemplateRequest](w, r)
	if !ok {
		return
	}

	tmpl, err := h.service.RegisterTemplate(ctx, actor, req.Template())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tmpl)
}

// HandleGetTemplate handles GET /directory/templates/{templateID}.
func (h *Handler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	parsed, err := strconv.ParseUint(chi.URLParam(r, "templateID"), 10, 8)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid template id"))
		return
	}
	tmpl, err := h.service.GetTemplate(r.Context(), id.TemplateID(parsed))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tmpl)
}

// HandleListTemplates handles GET /directory/templates.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	tmpls, err := h.service.ListTemplates(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tmpls)
}
