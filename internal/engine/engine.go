// Package engine orchestrates reward settlements: it turns an approved
// reward into confirmed ledger transactions for every leg of its split,
// with an at-least-once delivery guarantee gated by the audit log.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recircle/rewards/internal/ledger"
	"github.com/recircle/rewards/internal/metrics"
	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/policy"
	"github.com/recircle/rewards/internal/storage"
	"github.com/recircle/rewards/pkg/logging"
)

// Config bounds the engine's retry and confirmation behavior.
type Config struct {
	// MaxSubmitAttempts is the submission retry ceiling per leg.
	MaxSubmitAttempts int

	// RetryBackoff is the base delay between submission retries; each retry
	// doubles it.
	RetryBackoff time.Duration

	// PollInterval is the delay between confirmation status polls.
	PollInterval time.Duration

	// ConfirmTimeout bounds how long one leg waits for confirmation before
	// it is recorded as failed.
	ConfirmTimeout time.Duration
}

// DefaultConfig returns the engine defaults used when configuration leaves
// the knobs unset.
func DefaultConfig() Config {
	return Config{
		MaxSubmitAttempts: 3,
		RetryBackoff:      500 * time.Millisecond,
		PollInterval:      3 * time.Second,
		ConfirmTimeout:    90 * time.Second,
	}
}

// Engine executes settlement requests. Settlements for distinct receipts run
// fully in parallel; a per-receipt mutex serializes the idempotency check
// and leg execution for any single receipt.
type Engine struct {
	store  storage.AuditLog
	chain  ledger.Client
	signer *ledger.Signer
	split  policy.Config
	funds  map[string]string // fund role -> destination address
	cfg    Config
	m      *metrics.Metrics
	locks  *keyedMutex
}

// New creates a settlement engine. split must already be validated; funds
// maps every non-user role in split to its destination address.
func New(store storage.AuditLog, chain ledger.Client, signer *ledger.Signer,
	split policy.Config, funds map[string]string, cfg Config, m *metrics.Metrics) *Engine {
	return &Engine{
		store:  store,
		chain:  chain,
		signer: signer,
		split:  split,
		funds:  funds,
		cfg:    cfg,
		m:      m,
		locks:  newKeyedMutex(),
	}
}

// Settle executes the split for req, returning the aggregate result.
//
// A receipt whose stored result is already complete is returned unchanged
// with no ledger activity. Otherwise only the legs not yet confirmed are
// executed, user leg first; the plan is reconstructed from the audit rows on
// resume so the split never silently changes between retries.
//
// All ledger-interaction failures resolve into a non-complete result rather
// than an error; only a signing failure propagates as an error.
func (e *Engine) Settle(ctx context.Context, req *models.RewardRequest) (*models.SettlementResult, error) {
	unlock := e.locks.Lock(req.ReceiptID)
	defer unlock()

	prior, err := e.store.GetResult(ctx, req.ReceiptID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check prior settlement: %w", err)
	}
	if prior != nil && prior.OverallStatus == models.SettlementComplete {
		slog.Info("Settlement already complete, returning stored result",
			"receipt_id", req.ReceiptID)
		return prior, nil
	}

	attempts, err := e.store.GetAttempts(ctx, req.ReceiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	plan, err := e.buildPlan(req, attempts)
	if err != nil {
		return nil, err
	}

	proof, err := proofPayload(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof annotations: %w", err)
	}

	confirmed := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		if a.Status == models.AttemptConfirmed {
			confirmed[a.LegRole] = true
		}
	}

	// Persist the whole plan before touching the ledger. A leg skipped this
	// pass (user-leg failure, crash) must still have its audit row, or a
	// later resume rebuilds a plan without it and under-distributes.
	for _, leg := range plan.Legs {
		a := &models.SettlementAttempt{
			ReceiptID:   req.ReceiptID,
			LegRole:     leg.Role,
			Destination: leg.Destination,
			Amount:      leg.Amount,
		}
		if err := e.store.BeginAttempt(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to record settlement plan: %w", err)
		}
	}

	for _, leg := range plan.Legs {
		if confirmed[leg.Role] {
			// Never resubmit a confirmed leg: that is a double payment.
			continue
		}

		legErr := e.executeLeg(ctx, req.ReceiptID, leg, proof)
		if legErr == nil {
			continue
		}
		if errors.Is(legErr, ledger.ErrBadKey) {
			// Bad key material fails every leg identically; abort the whole
			// request and surface the error to the caller.
			e.finish(ctx, req.ReceiptID)
			return nil, fmt.Errorf("signing failure for receipt %s: %w", req.ReceiptID, legErr)
		}
		if leg.Role == models.RoleUser {
			// The user was not paid; fund legs that have not started must
			// not start. Legs confirmed on an earlier pass stay confirmed.
			slog.Error("User leg failed, aborting remaining legs",
				"receipt_id", req.ReceiptID, "error", legErr)
			break
		}
		slog.Error("Fund leg failed after retries",
			"receipt_id", req.ReceiptID, "leg_role", leg.Role, "error", legErr)
	}

	result := e.finish(ctx, req.ReceiptID)
	if result == nil {
		return nil, fmt.Errorf("failed to aggregate settlement for receipt %s", req.ReceiptID)
	}
	return result, nil
}

// buildPlan reuses the split recorded in the audit log when resuming;
// otherwise it computes a fresh plan and binds destinations.
func (e *Engine) buildPlan(req *models.RewardRequest, attempts []*models.SettlementAttempt) (*models.SplitPlan, error) {
	if len(attempts) > 0 {
		plan := &models.SplitPlan{ReceiptID: req.ReceiptID}
		for _, a := range attempts {
			plan.Legs = append(plan.Legs, models.Leg{
				Role:        a.LegRole,
				Destination: a.Destination,
				Amount:      a.Amount,
			})
		}
		return plan, nil
	}

	plan, err := policy.ComputeSplit(req.TotalAmount, e.split)
	if err != nil {
		return nil, fmt.Errorf("failed to compute split: %w", err)
	}
	plan.ReceiptID = req.ReceiptID

	for i := range plan.Legs {
		leg := &plan.Legs[i]
		if leg.Role == models.RoleUser {
			leg.Destination = req.Recipient
			continue
		}
		addr, ok := e.funds[leg.Role]
		if !ok {
			return nil, fmt.Errorf("no fund address configured for role %q", leg.Role)
		}
		leg.Destination = addr
	}

	// Zero-amount fund legs (tiny totals floored away) have nothing to
	// transfer and are dropped from the plan.
	legs := plan.Legs[:0]
	for _, leg := range plan.Legs {
		if leg.Amount.Sign() > 0 {
			legs = append(legs, leg)
		}
	}
	plan.Legs = legs

	return plan, nil
}

// executeLeg drives one leg from pending to confirmed or failed, recording
// every transition durably before moving on. The leg's audit row already
// exists; Settle persists the whole plan before executing anything.
func (e *Engine) executeLeg(ctx context.Context, receiptID string, leg models.Leg, proof []byte) error {
	txID, err := e.submitWithRetry(ctx, receiptID, leg, proof)
	if err != nil {
		if markErr := e.store.MarkFailed(ctx, receiptID, leg.Role, err.Error()); markErr != nil {
			slog.Error("Failed to record leg failure", "receipt_id", receiptID, "error", markErr)
		}
		return err
	}
	if err := e.store.MarkSubmitted(ctx, receiptID, leg.Role, txID); err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	slog.Info("Leg submitted", "receipt_id", receiptID, "leg_role", leg.Role, "tx_id", txID)

	start := time.Now()
	if err := e.awaitConfirmation(ctx, txID); err != nil {
		if markErr := e.store.MarkFailed(ctx, receiptID, leg.Role, err.Error()); markErr != nil {
			slog.Error("Failed to record leg failure", "receipt_id", receiptID, "error", markErr)
		}
		return err
	}
	e.m.ObserveConfirmLatency(time.Since(start))

	if err := e.store.MarkConfirmed(ctx, receiptID, leg.Role); err != nil {
		return fmt.Errorf("failed to record confirmation: %w", err)
	}
	slog.Info("Leg confirmed", "receipt_id", receiptID, "leg_role", leg.Role, "tx_id", txID)
	return nil
}

// submitWithRetry signs and submits a fresh transaction for the leg, retrying
// transient ledger failures with exponential backoff up to the configured
// ceiling. Every try consumes a new nonce and block reference, so each
// submission is a distinct transaction.
func (e *Engine) submitWithRetry(ctx context.Context, receiptID string, leg models.Leg, proof []byte) (string, error) {
	var lastErr error

	for try := 1; try <= e.cfg.MaxSubmitAttempts; try++ {
		if try > 1 {
			e.m.IncLegRetries()
			if err := sleepCtx(ctx, e.cfg.RetryBackoff<<(try-2)); err != nil {
				return "", err
			}
		}

		if err := e.store.IncrementAttempt(ctx, receiptID, leg.Role); err != nil {
			return "", fmt.Errorf("failed to record submission attempt: %w", err)
		}

		ref, err := e.chain.BestBlock(ctx)
		if err != nil {
			lastErr = err
			slog.Warn("Best block fetch failed", "receipt_id", receiptID, "try", try, "error", err)
			continue
		}

		tx, err := e.signer.Sign(ref, leg.Destination, leg.Amount, proof)
		if err != nil {
			// Key material problems are fatal, never retried.
			return "", err
		}

		e.m.IncLegSubmissions()
		txID, err := e.chain.Submit(ctx, tx)
		if err == nil {
			return txID, nil
		}
		if !errors.Is(err, ledger.ErrUnavailable) {
			return "", err
		}
		lastErr = err
		slog.Warn("Ledger unavailable on submit", "receipt_id", receiptID, "try", try, "error", err)
	}

	return "", fmt.Errorf("submission retries exhausted after %d attempts: %w", e.cfg.MaxSubmitAttempts, lastErr)
}

// awaitConfirmation polls the transaction status until it confirms, reverts,
// or the per-leg timeout elapses. Transient query failures are tolerated
// until the deadline.
func (e *Engine) awaitConfirmation(ctx context.Context, txID string) error {
	deadline := time.Now().Add(e.cfg.ConfirmTimeout)

	for {
		status, err := e.chain.Status(ctx, txID)
		switch {
		case err != nil && !errors.Is(err, ledger.ErrUnavailable):
			return err
		case err != nil:
			slog.Warn("Status query failed", "tx_id", txID, "error", err)
		case status == ledger.TxConfirmed:
			return nil
		case status == ledger.TxReverted:
			return fmt.Errorf("transaction %s: %w", txID, ledger.ErrReverted)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("confirmation of %s timed out after %s", txID, e.cfg.ConfirmTimeout)
		}
		if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// finish aggregates the audit rows into the receipt's result, persists it,
// and flags partial settlements loudly.
func (e *Engine) finish(ctx context.Context, receiptID string) *models.SettlementResult {
	attempts, err := e.store.GetAttempts(ctx, receiptID)
	if err != nil {
		slog.Error("Failed to load attempts for aggregation", "receipt_id", receiptID, "error", err)
		return nil
	}

	result := &models.SettlementResult{
		ReceiptID: receiptID,
		CreatedAt: time.Now().Unix(),
	}
	userConfirmed := false
	fundFailed := false
	for _, a := range attempts {
		result.Legs = append(result.Legs, models.LegResult{
			Role:       a.LegRole,
			LedgerTxID: a.LedgerTxID,
			Status:     a.Status,
		})
		if a.LegRole == models.RoleUser {
			userConfirmed = a.Status == models.AttemptConfirmed
		} else if a.Status != models.AttemptConfirmed {
			fundFailed = true
		}
	}

	switch {
	case userConfirmed && !fundFailed:
		result.OverallStatus = models.SettlementComplete
	case userConfirmed:
		result.OverallStatus = models.SettlementPartial
		// Real tokens left the distributor without reaching a fund. This is
		// financial leakage until an operator reconciles it.
		slog.Error("Partial settlement: user paid, fund leg(s) unsettled",
			"receipt_id", receiptID, logging.ReconcileKey, true)
	default:
		result.OverallStatus = models.SettlementFailed
	}
	e.m.IncSettlements(string(result.OverallStatus))

	if err := e.store.SaveResult(ctx, result); err != nil {
		slog.Error("Failed to persist settlement result", "receipt_id", receiptID, "error", err)
		return nil
	}
	return result
}

// proofPayload serializes the receipt context into the on-chain proof
// annotation attached to every leg's clause data.
func proofPayload(req *models.RewardRequest) ([]byte, error) {
	return json.Marshal(struct {
		ReceiptID  string  `json:"receipt_id"`
		StoreName  string  `json:"store_name,omitempty"`
		Category   string  `json:"category,omitempty"`
		Confidence float64 `json:"confidence,omitempty"`
	}{
		ReceiptID:  req.ReceiptID,
		StoreName:  req.Context.StoreName,
		Category:   req.Context.Category,
		Confidence: req.Context.Confidence,
	})
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
