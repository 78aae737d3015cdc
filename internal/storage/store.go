// Package storage provides abstractions for the durable settlement audit log.
package storage

import (
	"context"
	"errors"

	"github.com/recircle/rewards/internal/models"
)

// ErrNotFound is returned when no record exists for the given key.
var ErrNotFound = errors.New("record not found")

// AuditLog is the append/update record of every settlement attempt and
// outcome. It is the system's source of truth for "has this receipt already
// been paid"; the engine writes it before reporting any success externally.
// Rows are never deleted.
//
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the engine.
type AuditLog interface {
	// BeginAttempt records that the engine is starting (or resuming) a leg.
	// Inserts a pending row if none exists for (receipt, role); if a row
	// already exists it is loaded into a, with a failed row reset to
	// pending. Confirmed and submitted rows are never touched.
	BeginAttempt(ctx context.Context, a *models.SettlementAttempt) error

	// IncrementAttempt bumps the submission counter for a leg. Called before
	// every signing+submission try so the count is durable even if the
	// process dies mid-submit.
	IncrementAttempt(ctx context.Context, receiptID, legRole string) error

	// MarkSubmitted records ledger acceptance of the latest submission.
	MarkSubmitted(ctx context.Context, receiptID, legRole, ledgerTxID string) error

	// MarkConfirmed transitions a leg to confirmed.
	MarkConfirmed(ctx context.Context, receiptID, legRole string) error

	// MarkFailed transitions a leg to failed with its last error.
	MarkFailed(ctx context.Context, receiptID, legRole, cause string) error

	// GetAttempts returns all attempt rows for a receipt in insertion order.
	GetAttempts(ctx context.Context, receiptID string) ([]*models.SettlementAttempt, error)

	// SaveResult upserts the aggregate outcome for a receipt.
	SaveResult(ctx context.Context, result *models.SettlementResult) error

	// GetResult returns the stored aggregate outcome, with per-leg entries
	// rebuilt from the attempt rows. Returns ErrNotFound if the receipt has
	// never completed a settlement pass.
	GetResult(ctx context.Context, receiptID string) (*models.SettlementResult, error)

	// ListOpenAttempts returns every non-confirmed attempt row, oldest first.
	// Feeds the operator reconciliation report.
	ListOpenAttempts(ctx context.Context) ([]*models.SettlementAttempt, error)

	// Close releases any resources held by the store.
	Close() error
}
