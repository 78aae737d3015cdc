package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recircle/rewards/internal/auth"
	"github.com/recircle/rewards/internal/engine"
	"github.com/recircle/rewards/internal/ledger"
	"github.com/recircle/rewards/internal/middleware"
	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/policy"
	"github.com/recircle/rewards/internal/storage/sqlite"
)

const signerKey = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

// setupTestServer wires a real engine over a solo ledger behind the full
// HTTP surface, auth included.
func setupTestServer(t *testing.T) (*httptest.Server, string, *ledger.Solo) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "rewards-handler-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "audit.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	solo := ledger.NewSolo()
	signer, err := ledger.NewSigner(signerKey)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	split := policy.Config{{Role: "user", Percent: 70}, {Role: "app", Percent: 30}}
	funds := map[string]string{"app": appAddr}
	eng := engine.New(store, solo, signer, split, funds, engine.Config{
		MaxSubmitAttempts: 3,
		RetryBackoff:      time.Millisecond,
		PollInterval:      time.Millisecond,
		ConfirmTimeout:    time.Second,
	}, nil)

	gw := New(eng, nil, 18, funds, signer.Address())
	handler := NewHandler(gw, store)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtManager))
		r.Post("/approvals", handler.Approve)
		r.Get("/settlements/{receiptID}", handler.GetSettlement)
		r.Get("/reconciliation", handler.Reconciliation)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := jwtManager.Generate("reviewer-1", "review")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	return server, token, solo
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApprovalEndpoint(t *testing.T) {
	server, token, _ := setupTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, ApprovalRequest{
		ReceiptID: "receipt-http-1",
		Recipient: userAddr,
		Amount:    "10",
		Context:   models.RewardContext{StoreName: "MetroCard", Category: "public_transport"},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result models.SettlementResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.OverallStatus != models.SettlementComplete {
		t.Errorf("status = %s, want complete", result.OverallStatus)
	}
	if len(result.Legs) != 2 {
		t.Errorf("expected 2 legs, got %d", len(result.Legs))
	}
}

func TestApprovalEndpointRequiresAuth(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/v1/approvals", "", validRequest())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/v1/approvals", "not-a-token", validRequest())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for garbage token", resp.StatusCode)
	}
}

func TestApprovalEndpointRejectsFundRecipient(t *testing.T) {
	server, token, solo := setupTestServer(t)

	req := validRequest()
	req.Recipient = appAddr
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, req)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if solo.Submitted(appAddr) != 0 {
		t.Error("rejected approval reached the ledger")
	}
}

func TestApprovalEndpointIdempotent(t *testing.T) {
	server, token, solo := setupTestServer(t)

	req := ApprovalRequest{ReceiptID: "receipt-http-2", Recipient: userAddr, Amount: "10"}
	first := doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, req)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.StatusCode)
	}
	second := doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, req)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second status = %d, want 200", second.StatusCode)
	}

	if got := solo.Submitted(userAddr); got != 1 {
		t.Errorf("user submissions = %d, want 1 across repeated approvals", got)
	}
}

func TestSettlementLookup(t *testing.T) {
	server, token, _ := setupTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/v1/settlements/missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown receipt", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, ApprovalRequest{
		ReceiptID: "receipt-http-3", Recipient: userAddr, Amount: "5",
	})

	resp = doJSON(t, http.MethodGet, server.URL+"/v1/settlements/receipt-http-3", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result models.SettlementResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.ReceiptID != "receipt-http-3" {
		t.Errorf("receipt_id = %s, want receipt-http-3", result.ReceiptID)
	}
}

func TestReconciliationEndpoint(t *testing.T) {
	server, token, solo := setupTestServer(t)
	solo.RevertDestinations = map[string]bool{appAddr: true}

	doJSON(t, http.MethodPost, server.URL+"/v1/approvals", token, ApprovalRequest{
		ReceiptID: "receipt-http-4", Recipient: userAddr, Amount: "10",
	})

	resp := doJSON(t, http.MethodGet, server.URL+"/v1/reconciliation", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report struct {
		Entries []struct {
			ReceiptID string `json:"receipt_id"`
			LegRole   string `json:"leg_role"`
			Severity  string `json:"severity"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(report.Entries))
	}
	if report.Entries[0].LegRole != "app" || report.Entries[0].Severity != "high" {
		t.Errorf("unexpected entry: %+v", report.Entries[0])
	}
}
