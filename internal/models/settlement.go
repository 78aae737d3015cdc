package models

import "math/big"

// AttemptStatus is the lifecycle state of one settlement leg.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// SettlementAttempt is one durable audit row per (receipt, leg). Rows are
// created when the engine begins a leg and updated as the leg progresses;
// they are never deleted.
type SettlementAttempt struct {
	// ID is the unique identifier for the attempt row (UUID format).
	ID string

	// ReceiptID is the receipt this leg belongs to.
	ReceiptID string

	// LegRole is the share this leg pays out (RoleUser or a fund role).
	LegRole string

	// Destination is the ledger address receiving this leg.
	Destination string

	// Amount is the leg amount in minor units.
	Amount *big.Int

	// Status is the current lifecycle state.
	Status AttemptStatus

	// LedgerTxID is the most recent submitted transaction ID, empty until the
	// first submission is accepted. Retries re-sign with a fresh nonce, so a
	// leg may burn through several transaction IDs; only the latest is kept.
	LedgerTxID string

	// AttemptCount is the number of submission attempts made for this leg.
	AttemptCount int

	// LastError is the last failure message, empty when none.
	LastError string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// SettlementStatus is the aggregate outcome of a settlement.
type SettlementStatus string

const (
	// SettlementComplete means every leg confirmed on the ledger.
	SettlementComplete SettlementStatus = "complete"

	// SettlementPartial means the user leg confirmed but at least one fund
	// leg failed after retries. The user keeps their tokens; the failed fund
	// legs need operator reconciliation.
	SettlementPartial SettlementStatus = "partial"

	// SettlementFailed means the user leg itself failed.
	SettlementFailed SettlementStatus = "failed"
)

// LegResult is the per-leg slice of a SettlementResult.
type LegResult struct {
	Role       string        `json:"role"`
	LedgerTxID string        `json:"ledger_tx_id,omitempty"`
	Status     AttemptStatus `json:"status"`
}

// SettlementResult is the aggregate returned to callers. For an already
// complete receipt the stored result is returned unchanged, with no new
// ledger activity.
type SettlementResult struct {
	ReceiptID     string           `json:"receipt_id"`
	OverallStatus SettlementStatus `json:"overall_status"`
	Legs          []LegResult      `json:"legs"`
	CreatedAt     int64            `json:"created_at"`
}

// Leg returns the result entry for the given role, or nil.
func (r *SettlementResult) Leg(role string) *LegResult {
	for i := range r.Legs {
		if r.Legs[i].Role == role {
			return &r.Legs[i]
		}
	}
	return nil
}
