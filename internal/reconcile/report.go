// Package reconcile builds the operator-facing report of settlements that
// need manual attention: every failed leg and every receipt left partial.
// Partial settlements are real financial leakage (the user was paid, a fund
// was not) and must be surfaced, not just logged.
package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/storage"
)

// Severity ranks how urgently an entry needs an operator.
type Severity string

const (
	// SeverityCritical: the user leg failed; the receipt's submitter has not
	// been paid at all.
	SeverityCritical Severity = "critical"
	// SeverityHigh: a fund leg failed after the user was paid; tokens leaked
	// out of the distribution budget.
	SeverityHigh Severity = "high"
	// SeverityLow: a leg still in flight (pending or submitted); only
	// actionable if it stays that way.
	SeverityLow Severity = "low"
)

// Entry is one unsettled leg in the report.
type Entry struct {
	ReceiptID   string   `json:"receipt_id"`
	LegRole     string   `json:"leg_role"`
	Destination string   `json:"destination"`
	Amount      string   `json:"amount"` // minor units, decimal string
	Status      string   `json:"status"`
	LedgerTxID  string   `json:"ledger_tx_id,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	Severity    Severity `json:"severity"`
	UpdatedAt   int64    `json:"updated_at"`
}

// Report is the aggregate reconciliation view.
type Report struct {
	GeneratedAt    int64   `json:"generated_at"`
	Entries        []Entry `json:"entries"`
	UnsettledMinor string  `json:"unsettled_minor_units"`
}

// Build assembles a report from open audit rows. Pure: no I/O.
func Build(attempts []*models.SettlementAttempt, now time.Time) *Report {
	report := &Report{
		GeneratedAt: now.Unix(),
		Entries:     make([]Entry, 0, len(attempts)),
	}

	unsettled := new(big.Int)
	for _, a := range attempts {
		entry := Entry{
			ReceiptID:   a.ReceiptID,
			LegRole:     a.LegRole,
			Destination: a.Destination,
			Amount:      a.Amount.String(),
			Status:      string(a.Status),
			LedgerTxID:  a.LedgerTxID,
			LastError:   a.LastError,
			UpdatedAt:   a.UpdatedAt,
			Severity:    severityOf(a),
		}
		report.Entries = append(report.Entries, entry)
		if a.Status == models.AttemptFailed {
			unsettled.Add(unsettled, a.Amount)
		}
	}
	report.UnsettledMinor = unsettled.String()
	return report
}

func severityOf(a *models.SettlementAttempt) Severity {
	if a.Status != models.AttemptFailed {
		return SeverityLow
	}
	if a.LegRole == models.RoleUser {
		return SeverityCritical
	}
	return SeverityHigh
}

// Reporter reads open attempts from the audit log and builds reports.
type Reporter struct {
	store storage.AuditLog
}

// NewReporter creates a reporter over the given audit log.
func NewReporter(store storage.AuditLog) *Reporter {
	return &Reporter{store: store}
}

// Report builds the current reconciliation report.
func (r *Reporter) Report(ctx context.Context) (*Report, error) {
	open, err := r.store.ListOpenAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open attempts: %w", err)
	}
	return Build(open, time.Now()), nil
}
