package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"bxhive/internal/directory/models"
	dirsvc "bxhive/internal/directory/service"
	dirmem "bxhive/internal/directory/store/memory"
	fundsmem "bxhive/internal/funds/memory"
	"bxhive/internal/jwtauth"
	mw "bxhive/internal/platform/middleware"
	id "bxhive/pkg/domain"
	"bxhive/pkg/requestcontext"
	"bxhive/pkg/secrets"
)

const adminToken = "test-admin-token"

type testEnv struct {
	router     chi.Router
	svc        *dirsvc.Service
	tokens     *jwtauth.Service
	superAdmin id.Address
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Test-Actor"); raw != "" {
			if actor, err := id.ParseAddress(raw); err == nil {
				r = r.WithContext(requestcontext.WithActor(r.Context(), actor))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		superAdmin: id.NewAddress(),
		tokens:     jwtauth.NewService("test-signing-key", "bxhive-test", time.Hour),
	}
	env.svc = dirsvc.New(dirmem.New(), fundsmem.NewTreasury(), env.superAdmin, dirsvc.WithFaucet(1000))
	if err := env.svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	hash, err := secrets.Hash(adminToken)
	if err != nil {
		t.Fatalf("hash admin token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(env.svc, env.tokens, logger)

	router := chi.NewRouter()
	router.Use(actorMiddleware)
	h.Register(router)
	router.Group(func(r chi.Router) {
		r.Use(mw.RequireAdminToken(hash, logger))
		h.RegisterAdmin(r)
	})
	env.router = router
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, headers map[string]string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterIssuesIDAddressAndToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/directory/users", nil,
		map[string]string{"role": "subject", "name": "alice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp RegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != 0 || resp.Address == "" || resp.Token == "" {
		t.Fatalf("unexpected registration response: %+v", resp)
	}

	// The issued token authenticates as the new address.
	claims, err := env.tokens.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Actor.String() != resp.Address || claims.Role != "subject" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Second registration gets the next ID.
	rec = env.do(t, http.MethodPost, "/directory/users", nil,
		map[string]string{"role": "experimenter", "name": "bob"})
	var second RegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if second.UserID != 1 {
		t.Fatalf("expected user_id 1, got %d", second.UserID)
	}
}

func TestRegisterRejectsBadRole(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/directory/users", nil,
		map[string]string{"role": "wizard", "name": "gandalf"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUserLookupRoutes(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/directory/users", nil,
		map[string]string{"role": "subject", "name": "alice"})
	var created RegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/directory/users/"+created.Address, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 by address, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/directory/users/id/0", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 by id, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/directory/users/"+created.Address+"/balance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for balance, got %d", rec.Code)
	}
	var balance BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != 1000 {
		t.Fatalf("expected faucet balance 1000, got %d", balance.Balance)
	}

	rec = env.do(t, http.MethodGet, "/directory/users/"+id.NewAddress().String(), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/admin/directory/admins", nil,
		map[string]string{"address": id.NewAddress().String()})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin token, got %d", rec.Code)
	}
}

func TestAdminAndTemplateFlow(t *testing.T) {
	env := newTestEnv(t)
	operator := id.NewAddress()
	superHeaders := map[string]string{
		"X-Admin-Token": adminToken,
		"X-Test-Actor":  env.superAdmin.String(),
	}

	rec := env.do(t, http.MethodPost, "/admin/directory/admins", superHeaders,
		map[string]string{"address": operator.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding admin, got %d: %s", rec.Code, rec.Body.String())
	}

	// Operators cannot appoint admins even with the deployment token.
	operatorHeaders := map[string]string{
		"X-Admin-Token": adminToken,
		"X-Test-Actor":  operator.String(),
	}
	rec = env.do(t, http.MethodPost, "/admin/directory/admins", operatorHeaders,
		map[string]string{"address": id.NewAddress().String()})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}

	// Operators can register templates.
	rec = env.do(t, http.MethodPost, "/admin/directory/templates", operatorHeaders, map[string]any{
		"template_id":  1,
		"kind":         "trust_game",
		"name":         "Trust Game",
		"player_count": 2,
		"enabled":      true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering template, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/directory/templates/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching template, got %d", rec.Code)
	}
	var tmpl models.Template
	if err := json.NewDecoder(rec.Body).Decode(&tmpl); err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if tmpl.Kind != "trust_game" || tmpl.PlayerCount != 2 {
		t.Fatalf("unexpected template: %+v", tmpl)
	}

	// Remove the operator.
	rec = env.do(t, http.MethodDelete, "/admin/directory/admins/"+operator.String(), superHeaders, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 removing admin, got %d", rec.Code)
	}
}
