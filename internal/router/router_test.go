package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"fundledger/config"
	"fundledger/internal/auth"
	"fundledger/internal/database"
	"fundledger/internal/domain"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type api struct {
	t      *testing.T
	cfg    *config.Config
	engine *gin.Engine
	svcs   *Services
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server:   config.ServerConfig{Env: "test"},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "api.db"), ConnMaxLifetime: time.Hour},
		JWT:      config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "fundledger"},
		Payment:  config.PaymentConfig{WebhookSecret: "payment-secret"},
		Ledger:   config.DefaultLedger(),
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	svcs, err := NewServices(cfg, db)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	return &api{t: t, cfg: cfg, engine: Setup(cfg, svcs, nil), svcs: svcs}
}

func (a *api) token(sub, role string) string {
	tok, err := auth.GenerateAccessToken(&a.cfg.JWT, sub, role)
	if err != nil {
		a.t.Fatalf("token: %v", err)
	}
	return tok
}

func (a *api) do(method, path, token string, body any, headers map[string]string) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	out := map[string]any{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (a *api) createProject(admin string) (uint, []uint) {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/api/v1/admin/projects", admin, map[string]any{
		"name":       "Rural Medical Clinic",
		"country":    "ke",
		"goal_cents": 50000,
		"categories": []map[string]any{
			{"name": "Medical Equipment", "percentage": 40},
			{"name": "Building Materials", "percentage": 35},
			{"name": "Staff Training", "percentage": 25},
		},
		"milestones": []map[string]any{
			{"title": "Foundation", "sequence": 1, "required_cents": 20000},
			{"title": "Fit-out", "sequence": 2, "required_cents": 30000},
		},
	}, nil)
	if code != http.StatusCreated {
		a.t.Fatalf("create project: %d %v", code, body)
	}
	var ms []uint
	for _, m := range body["milestones"].([]any) {
		ms = append(ms, uint(m.(map[string]any)["id"].(float64)))
	}
	return uint(body["id"].(float64)), ms
}

func TestAPI_DonateApproveRelease(t *testing.T) {
	a := newAPI(t)
	admin := a.token("root", domain.RoleAdmin)
	approver := a.token("ap", domain.RoleApprover)
	alice := a.token("alice", domain.RoleDonor)
	payments := a.token("psp", domain.RolePayment)

	if code, _ := a.do(http.MethodPost, "/api/v1/admin/projects", alice, map[string]any{"name": "x"}, nil); code != http.StatusForbidden {
		t.Fatalf("donor creating project: %d", code)
	}
	pid, ms := a.createProject(admin)

	donation := map[string]any{"donor_id": "alice", "amount_cents": 20000, "project_id": pid}
	key := map[string]string{"Idempotency-Key": "alice-1"}
	if code, _ := a.do(http.MethodPost, "/api/v1/donations", alice, donation, nil); code != http.StatusForbidden {
		t.Fatalf("donor booking a captured donation: %d", code)
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/donations", payments, map[string]any{"amount_cents": 100}, nil); code != http.StatusBadRequest {
		t.Fatalf("captured donation without donor_id: %d", code)
	}
	code, first := a.do(http.MethodPost, "/api/v1/donations", payments, donation, key)
	if code != http.StatusCreated || first["status"] != string(domain.DonationCaptured) || first["donor_id"] != "alice" {
		t.Fatalf("record donation: %d %v", code, first)
	}
	_, again := a.do(http.MethodPost, "/api/v1/donations", payments, donation, key)
	if again["id"] != first["id"] {
		t.Fatalf("idempotent replay returned a new donation: %v vs %v", again["id"], first["id"])
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/donations", payments, map[string]any{"donor_id": "alice", "amount_cents": 0}, nil); code != http.StatusBadRequest {
		t.Fatalf("zero amount: %d", code)
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/donations", payments, map[string]any{"donor_id": "alice", "amount_cents": 100, "project_id": 999}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown project: %d", code)
	}

	m1 := "/api/v1/milestones/" + strconv.Itoa(int(ms[0]))
	m2 := "/api/v1/milestones/" + strconv.Itoa(int(ms[1]))
	if code, _ := a.do(http.MethodPost, m1+"/approve", alice, nil, nil); code != http.StatusForbidden {
		t.Fatalf("donor approving: %d", code)
	}
	if code, body := a.do(http.MethodPost, m1+"/release", approver, nil, nil); code != http.StatusConflict || body["precondition"] == nil {
		t.Fatalf("release before approve: %d %v", code, body)
	}
	if code, body := a.do(http.MethodPost, m1+"/approve", approver, nil, nil); code != http.StatusOK || body["status"] != string(domain.MilestoneApproved) {
		t.Fatalf("approve: %d %v", code, body)
	}
	if code, body := a.do(http.MethodPost, m1+"/release", approver, nil, nil); code != http.StatusOK || body["released_cents"] != float64(20000) {
		t.Fatalf("release: %d %v", code, body)
	}
	if code, _ := a.do(http.MethodPost, m1+"/release", approver, nil, nil); code != http.StatusOK {
		t.Fatalf("repeated release should be a no-op: %d", code)
	}
	if code, _ := a.do(http.MethodPost, m2+"/approve", approver, nil, nil); code != http.StatusOK {
		t.Fatalf("approve second milestone: %d", code)
	}
	if code, body := a.do(http.MethodPost, m2+"/release", approver, nil, nil); code != http.StatusConflict || body["retryable"] != nil {
		t.Fatalf("releasing an unfunded milestone: %d %v", code, body)
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/milestones/9999/approve", approver, nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown milestone: %d", code)
	}

	code, st := a.do(http.MethodGet, "/api/v1/projects/"+strconv.Itoa(int(pid))+"/state", "", nil, nil)
	if code != http.StatusOK || st["raised_cents"] != float64(20000) || st["released_cents"] != float64(20000) || st["available_cents"] != float64(0) {
		t.Fatalf("state: %d %v", code, st)
	}
	code, evs := a.do(http.MethodGet, "/api/v1/projects/"+strconv.Itoa(int(pid))+"/events", "", nil, nil)
	if code != http.StatusOK || len(evs["events"].([]any)) != 4 {
		t.Fatalf("events: %d %v", code, evs)
	}
	code, audit := a.do(http.MethodGet, "/api/v1/admin/milestones/"+strconv.Itoa(int(ms[0]))+"/audit", admin, nil, nil)
	if code != http.StatusOK || len(audit["audit"].([]any)) != 2 {
		t.Fatalf("audit: %d %v", code, audit)
	}

	if code, prog := a.do(http.MethodGet, "/api/v1/me/progress", alice, nil, nil); code != http.StatusOK || prog["rank"] != float64(1) {
		t.Fatalf("progress: %d %v", code, prog)
	}
	if code, _ := a.do(http.MethodGet, "/api/v1/donors/nobody/progress", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown donor progress: %d", code)
	}
	if code, board := a.do(http.MethodGet, "/api/v1/leaderboard", "", nil, nil); code != http.StatusOK || len(board["leaderboard"].([]any)) != 1 {
		t.Fatalf("leaderboard: %d %v", code, board)
	}
}

func TestAPI_PaymentWebhookSettlesPendingDonation(t *testing.T) {
	a := newAPI(t)
	bob := a.token("bob", domain.RoleDonor)

	if code, _ := a.do(http.MethodPost, "/api/v1/donations/pending", bob, map[string]any{"amount_cents": 1001}, nil); code != http.StatusBadRequest {
		t.Fatalf("pending donation without reference: %d", code)
	}
	code, d := a.do(http.MethodPost, "/api/v1/donations/pending", bob, map[string]any{"amount_cents": 1001, "payment_reference": "pay_123"}, nil)
	if code != http.StatusAccepted || d["status"] != string(domain.DonationPending) {
		t.Fatalf("open: %d %v", code, d)
	}

	payload, _ := json.Marshal(map[string]string{"reference": "pay_123", "status": "COMPLETED"})
	send := func(sig string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(payload))
		req.Header.Set("X-Webhook-Signature", sig)
		w := httptest.NewRecorder()
		a.engine.ServeHTTP(w, req)
		out := map[string]any{}
		json.Unmarshal(w.Body.Bytes(), &out)
		return w.Code, out
	}
	if code, _ := send("deadbeef"); code != http.StatusUnauthorized {
		t.Fatalf("bad signature: %d", code)
	}
	sig := service.Sign(a.cfg.Payment.WebhookSecret, payload)
	if code, body := send(sig); code != http.StatusOK || body["status"] != string(domain.DonationCaptured) {
		t.Fatalf("settle: %d %v", code, body)
	}
	if code, body := send(sig); code != http.StatusOK || body["status"] != string(domain.DonationCaptured) {
		t.Fatalf("second callback should be a no-op: %d %v", code, body)
	}

	code, pool := a.do(http.MethodGet, "/api/v1/pool", "", nil, nil)
	if code != http.StatusOK || pool["raised_cents"] != float64(1001) {
		t.Fatalf("pool: %d %v", code, pool)
	}

	id := strconv.Itoa(int(d["id"].(float64)))
	if code, _ := a.do(http.MethodGet, "/api/v1/donations/"+id, a.token("mallory", domain.RoleDonor), nil, nil); code != http.StatusNotFound {
		t.Fatalf("other donor reading a donation: %d", code)
	}
	if code, list := a.do(http.MethodGet, "/api/v1/me/donations", bob, nil, nil); code != http.StatusOK || len(list["donations"].([]any)) != 1 {
		t.Fatalf("my donations: %d %v", code, list)
	}
}

func TestAPI_WebhookAdminAndReferrals(t *testing.T) {
	a := newAPI(t)
	admin := a.token("root", domain.RoleAdmin)
	code, sub := a.do(http.MethodPost, "/api/v1/admin/webhooks", admin, map[string]any{
		"name": "crm", "url": "https://example.org/hook", "secret": "0123456789abcdef", "event_types": []string{domain.EventMilestoneReleased},
	}, nil)
	if code != http.StatusCreated || sub["secret"] != nil {
		t.Fatalf("create webhook: %d %v", code, sub)
	}
	path := "/api/v1/admin/webhooks/" + strconv.Itoa(int(sub["id"].(float64)))
	if code, body := a.do(http.MethodPatch, path, admin, map[string]any{"is_active": false}, nil); code != http.StatusOK || body["is_active"] != false {
		t.Fatalf("pause webhook: %d %v", code, body)
	}
	if code, _ := a.do(http.MethodDelete, path, admin, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete webhook: %d", code)
	}
	if code, _ := a.do(http.MethodDelete, path, admin, nil, nil); code != http.StatusNotFound {
		t.Fatalf("delete twice: %d", code)
	}

	bob := a.token("bob", domain.RoleDonor)
	if code, _ := a.do(http.MethodPost, "/api/v1/me/referral", bob, map[string]any{"referrer_id": "bob"}, nil); code != http.StatusBadRequest {
		t.Fatalf("self referral: %d", code)
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/me/referral", bob, map[string]any{"referrer_id": "alice"}, nil); code != http.StatusOK {
		t.Fatalf("referral: %d", code)
	}
	if code, list := a.do(http.MethodGet, "/api/v1/me/referrals", a.token("alice", domain.RoleDonor), nil, nil); code != http.StatusOK || list["total"] != float64(1) {
		t.Fatalf("referrals: %d %v", code, list)
	}
}
