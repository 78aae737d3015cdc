// Package gateway is the approval boundary of the settlement core. It turns
// an external approval decision (auto-approval or manual review) into a
// settlement request, rejecting malformed or unsafe requests before any
// ledger interaction or audit write happens.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recircle/rewards/internal/cache"
	"github.com/recircle/rewards/internal/models"
)

// ErrInvalidRequest marks approvals rejected synchronously: bad address
// format, non-positive amount, or a recipient that is one of the platform's
// own wallets. These never reach the ledger and leave no audit attempt.
var ErrInvalidRequest = errors.New("invalid approval request")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Settler executes a validated reward request. Implemented by engine.Engine.
type Settler interface {
	Settle(ctx context.Context, req *models.RewardRequest) (*models.SettlementResult, error)
}

// ApprovalRequest is the inbound approval decision. Amount is a display
// decimal string ("10.5"); conversion to minor units happens here and
// nowhere else.
type ApprovalRequest struct {
	ReceiptID string               `json:"receipt_id"`
	Recipient string               `json:"recipient"`
	Amount    string               `json:"amount"`
	Context   models.RewardContext `json:"context"`
}

// Gateway validates approvals and hands them to the settlement engine.
type Gateway struct {
	settler  Settler
	results  cache.ResultCache // optional, nil disables the cache
	decimals int32
	// blocked holds every platform-controlled address (funds and the
	// distributor itself), lowercased. None of them may receive a reward.
	blocked map[string]bool
}

// New creates a gateway. fundAddrs maps fund roles to their addresses;
// distributorAddr is the signer's own address.
func New(settler Settler, results cache.ResultCache, tokenDecimals int32,
	fundAddrs map[string]string, distributorAddr string) *Gateway {
	blocked := make(map[string]bool, len(fundAddrs)+1)
	for _, addr := range fundAddrs {
		blocked[strings.ToLower(addr)] = true
	}
	if distributorAddr != "" {
		blocked[strings.ToLower(distributorAddr)] = true
	}
	return &Gateway{
		settler:  settler,
		results:  results,
		decimals: tokenDecimals,
		blocked:  blocked,
	}
}

// Approve settles the reward for an approved receipt. Calling it repeatedly
// with the same receipt is safe: a receipt already settled completely comes
// back from the cache or the audit log with no new ledger activity.
func (g *Gateway) Approve(ctx context.Context, req ApprovalRequest) (*models.SettlementResult, error) {
	amount, err := g.validate(req)
	if err != nil {
		slog.Warn("Approval rejected", "receipt_id", req.ReceiptID, "error", err)
		return nil, err
	}

	if g.results != nil {
		if cached, err := g.results.Get(ctx, req.ReceiptID); err == nil &&
			cached.OverallStatus == models.SettlementComplete {
			slog.Debug("Approval served from cache", "receipt_id", req.ReceiptID)
			return cached, nil
		}
	}

	result, err := g.settler.Settle(ctx, &models.RewardRequest{
		ReceiptID:   req.ReceiptID,
		Recipient:   req.Recipient,
		TotalAmount: amount,
		Context:     req.Context,
	})
	if err != nil {
		return nil, err
	}

	if g.results != nil && result.OverallStatus == models.SettlementComplete {
		if err := g.results.Set(ctx, result); err != nil {
			slog.Warn("Failed to cache settlement result", "receipt_id", req.ReceiptID, "error", err)
		}
	}
	return result, nil
}

// validate rejects malformed approvals and converts the display amount to
// minor units.
func (g *Gateway) validate(req ApprovalRequest) (*big.Int, error) {
	if req.ReceiptID == "" {
		return nil, fmt.Errorf("%w: receipt id is required", ErrInvalidRequest)
	}
	if !addressPattern.MatchString(req.Recipient) {
		return nil, fmt.Errorf("%w: malformed recipient address %q", ErrInvalidRequest, req.Recipient)
	}
	if g.blocked[strings.ToLower(req.Recipient)] {
		return nil, fmt.Errorf("%w: recipient %s is a platform wallet", ErrInvalidRequest, req.Recipient)
	}

	d, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrInvalidRequest, req.Amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRequest, req.Amount)
	}
	minor := d.Shift(g.decimals)
	if !minor.IsInteger() {
		return nil, fmt.Errorf("%w: amount %s exceeds %d decimal places", ErrInvalidRequest, req.Amount, g.decimals)
	}
	return minor.BigInt(), nil
}
