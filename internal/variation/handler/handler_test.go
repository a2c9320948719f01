package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	fundsmem "bxhive/internal/funds/memory"
	"bxhive/internal/variation/engine"
	"bxhive/internal/variation/models"
	id "bxhive/pkg/domain"
	"bxhive/pkg/requestcontext"
)

type testEnv struct {
	router   chi.Router
	host     *engine.Host
	treasury *fundsmem.Treasury
	addr     id.Address
	owner    id.Address
	investor id.Address
	trustee  id.Address
}

// actorMiddleware injects the X-Test-Actor header as the authenticated
// caller, standing in for the JWT middleware.
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
		treasury: fundsmem.NewTreasury(),
		owner:    id.NewAddress(),
		investor: id.NewAddress(),
		trustee:  id.NewAddress(),
	}
	env.host = engine.NewHost(env.treasury)

	eng, err := env.host.Stage(models.Config{
		Owner:      env.owner,
		E1:         100,
		E2:         50,
		Multiplier: 3,
		Unit:       10,
	})
	if err != nil {
		t.Fatalf("stage engine: %v", err)
	}
	if err := env.host.Commit(eng.Address()); err != nil {
		t.Fatalf("commit engine: %v", err)
	}
	env.addr = eng.Address()

	if err := env.treasury.Mint(context.Background(), eng.Address(), 1000); err != nil {
		t.Fatalf("mint escrow: %v", err)
	}
	if err := eng.RecordEscrow(1000); err != nil {
		t.Fatalf("record escrow: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Use(actorMiddleware)
	New(env.host, logger).Register(router)
	env.router = router
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, actor id.Address, payload any) *httptest.ResponseRecorder {
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
	if !actor.IsZero() {
		req.Header.Set("X-Test-Actor", actor.String())
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) enrollPair(t *testing.T) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/subjects", env.owner,
		map[string]any{"subjects": []string{env.investor.String(), env.trustee.String()}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 enrolling subjects, got %d: %s", rec.Code, rec.Body.String())
	}
}

func (env *testEnv) createMatch(t *testing.T) uint32 {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/matches", env.owner,
		map[string]any{"investor": env.investor.String(), "trustee": env.trustee.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating match, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp MatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode match response: %v", err)
	}
	return resp.MatchID
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/variations/"+env.addr.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if resp.E1 != 100 || resp.E2 != 50 || resp.Multiplier != 3 || resp.Unit != 10 {
		t.Fatalf("unexpected config: %+v", resp)
	}
	if resp.Status != "active" {
		t.Fatalf("expected active status, got %q", resp.Status)
	}
}

func TestUnknownVariationIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/variations/"+id.NewAddress().String(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMalformedAddressIs400(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/variations/not-a-uuid", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMutationsRequireAnActor(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/registration/close", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOwnerOnlyRoutesRejectOtherActors(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/registration/close", id.NewAddress(), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFullMatchLifecycleViaHandlers(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPair(t)
	matchID := env.createMatch(t)
	base := fmt.Sprintf("/variations/%s/matches/%d", env.addr, matchID)

	rec := env.do(t, http.MethodPost, base+"/investment", env.investor, map[string]any{"amount": 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on investment, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, base+"/return", env.trustee, map[string]any{"amount": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on return, got %d: %s", rec.Code, rec.Body.String())
	}
	var settled MatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&settled); err != nil {
		t.Fatalf("decode settled match: %v", err)
	}
	if settled.InvestorPayout != 120 || settled.TrusteePayout != 110 {
		t.Fatalf("unexpected payouts: %+v", settled)
	}
	if settled.Phase != "completed" || !settled.PaidOut || settled.CompletedAt == nil {
		t.Fatalf("expected completed paid-out match, got %+v", settled)
	}

	rec = env.do(t, http.MethodGet, "/variations/"+env.addr.String()+"/escrow", "", nil)
	var escrow EscrowResponse
	if err := json.NewDecoder(rec.Body).Decode(&escrow); err != nil {
		t.Fatalf("decode escrow: %v", err)
	}
	if escrow.Balance != 770 {
		t.Fatalf("expected balance 770, got %d", escrow.Balance)
	}

	rec = env.do(t, http.MethodGet, "/variations/"+env.addr.String()+"/players/"+env.investor.String()+"/match", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on player match, got %d", rec.Code)
	}
	var pm PlayerMatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&pm); err != nil {
		t.Fatalf("decode player match: %v", err)
	}
	if pm.MatchID != matchID {
		t.Fatalf("expected match %d, got %d", matchID, pm.MatchID)
	}
}

func TestDecisionRejectionsMapToStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPair(t)
	matchID := env.createMatch(t)
	base := fmt.Sprintf("/variations/%s/matches/%d", env.addr, matchID)

	// Not a unit multiple.
	rec := env.do(t, http.MethodPost, base+"/investment", env.investor, map[string]any{"amount": 35})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-unit amount, got %d", rec.Code)
	}
	var body struct {
		Condition string `json:"condition"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Condition != "not_unit_multiple" {
		t.Fatalf("expected not_unit_multiple condition, got %q", body.Condition)
	}

	// Wrong caller.
	rec = env.do(t, http.MethodPost, base+"/investment", env.trustee, map[string]any{"amount": 40})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong caller, got %d", rec.Code)
	}

	// Wrong phase.
	rec = env.do(t, http.MethodPost, base+"/return", env.trustee, map[string]any{"amount": 0})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for wrong phase, got %d", rec.Code)
	}
}

func TestDepositEscrowViaHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.treasury.Mint(ctx, env.owner, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	payment, err := env.treasury.Authorize(ctx, env.owner, env.addr, 300)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/escrow", env.owner,
		map[string]any{"payment_id": string(payment.ID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on deposit, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AmountResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode deposit response: %v", err)
	}
	if resp.Amount != 300 {
		t.Fatalf("expected amount 300, got %d", resp.Amount)
	}

	// A second redemption of the same payment conflicts.
	rec = env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/escrow", env.owner,
		map[string]any{"payment_id": string(payment.ID)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", rec.Code)
	}
}

func TestWithdrawEscrowViaHandler(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPair(t)
	env.createMatch(t)

	rec := env.do(t, http.MethodPost, "/variations/"+env.addr.String()+"/escrow/withdraw", env.owner, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while matches pending, got %d", rec.Code)
	}
	var body struct {
		Condition string `json:"condition"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Condition != "matches_pending" {
		t.Fatalf("expected matches_pending, got %q", body.Condition)
	}
}
