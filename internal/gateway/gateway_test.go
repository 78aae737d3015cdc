package gateway

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/recircle/rewards/internal/cache"
	"github.com/recircle/rewards/internal/models"
)

const (
	userAddr  = "0x1111111111111111111111111111111111111111"
	appAddr   = "0xAbCdEf2222222222222222222222222222222222"
	distrAddr = "0x9999999999999999999999999999999999999999"
)

// fakeSettler records requests and returns a canned result.
type fakeSettler struct {
	calls  []*models.RewardRequest
	result *models.SettlementResult
	err    error
}

func (f *fakeSettler) Settle(ctx context.Context, req *models.RewardRequest) (*models.SettlementResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.SettlementResult{
		ReceiptID:     req.ReceiptID,
		OverallStatus: models.SettlementComplete,
		Legs: []models.LegResult{
			{Role: "user", LedgerTxID: "0xtx", Status: models.AttemptConfirmed},
		},
	}, nil
}

// memCache is an in-memory ResultCache for tests.
type memCache struct {
	results map[string]*models.SettlementResult
}

func (m *memCache) Get(ctx context.Context, receiptID string) (*models.SettlementResult, error) {
	if r, ok := m.results[receiptID]; ok {
		return r, nil
	}
	return nil, cache.ErrNotFound
}

func (m *memCache) Set(ctx context.Context, result *models.SettlementResult) error {
	m.results[result.ReceiptID] = result
	return nil
}

func newTestGateway(settler Settler, results cache.ResultCache) *Gateway {
	return New(settler, results, 18, map[string]string{"app": appAddr}, distrAddr)
}

func validRequest() ApprovalRequest {
	return ApprovalRequest{
		ReceiptID: "receipt-1",
		Recipient: userAddr,
		Amount:    "10",
		Context:   models.RewardContext{Category: "public_transport", Confidence: 0.9},
	}
}

func TestApproveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ApprovalRequest)
	}{
		{"empty receipt id", func(r *ApprovalRequest) { r.ReceiptID = "" }},
		{"malformed address", func(r *ApprovalRequest) { r.Recipient = "0x123" }},
		{"not an address", func(r *ApprovalRequest) { r.Recipient = "bob" }},
		{"fund address as recipient", func(r *ApprovalRequest) { r.Recipient = appAddr }},
		{"fund address case-insensitive", func(r *ApprovalRequest) {
			r.Recipient = "0xabcdef2222222222222222222222222222222222"
		}},
		{"distributor as recipient", func(r *ApprovalRequest) { r.Recipient = distrAddr }},
		{"zero amount", func(r *ApprovalRequest) { r.Amount = "0" }},
		{"negative amount", func(r *ApprovalRequest) { r.Amount = "-5" }},
		{"malformed amount", func(r *ApprovalRequest) { r.Amount = "ten" }},
		{"sub-wei precision", func(r *ApprovalRequest) { r.Amount = "0.0000000000000000001" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &fakeSettler{}
			gw := newTestGateway(settler, nil)

			req := validRequest()
			tt.mutate(&req)

			_, err := gw.Approve(context.Background(), req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
			// Rejected approvals must never reach the engine.
			if len(settler.calls) != 0 {
				t.Errorf("settler called %d times for invalid request", len(settler.calls))
			}
		})
	}
}

func TestApproveConvertsDisplayDecimal(t *testing.T) {
	settler := &fakeSettler{}
	gw := newTestGateway(settler, nil)

	req := validRequest()
	req.Amount = "10.5"

	if _, err := gw.Approve(context.Background(), req); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("settler called %d times, want 1", len(settler.calls))
	}

	want, _ := new(big.Int).SetString("10500000000000000000", 10)
	if got := settler.calls[0].TotalAmount; got.Cmp(want) != 0 {
		t.Errorf("total = %v, want %v (10.5 tokens in wei)", got, want)
	}
}

func TestApproveServedFromCache(t *testing.T) {
	cached := &models.SettlementResult{
		ReceiptID:     "receipt-1",
		OverallStatus: models.SettlementComplete,
	}
	settler := &fakeSettler{}
	gw := newTestGateway(settler, &memCache{results: map[string]*models.SettlementResult{
		"receipt-1": cached,
	}})

	result, err := gw.Approve(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if result != cached {
		t.Error("expected the cached result to be returned")
	}
	if len(settler.calls) != 0 {
		t.Errorf("settler called %d times for cached receipt", len(settler.calls))
	}
}

func TestApproveCachesCompleteResults(t *testing.T) {
	mc := &memCache{results: make(map[string]*models.SettlementResult)}
	gw := newTestGateway(&fakeSettler{}, mc)

	if _, err := gw.Approve(context.Background(), validRequest()); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, ok := mc.results["receipt-1"]; !ok {
		t.Error("complete result was not cached")
	}
}

func TestApproveDoesNotCacheNonComplete(t *testing.T) {
	mc := &memCache{results: make(map[string]*models.SettlementResult)}
	settler := &fakeSettler{result: &models.SettlementResult{
		ReceiptID:     "receipt-1",
		OverallStatus: models.SettlementPartial,
	}}
	gw := newTestGateway(settler, mc)

	if _, err := gw.Approve(context.Background(), validRequest()); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, ok := mc.results["receipt-1"]; ok {
		t.Error("partial result must not be cached")
	}
}
