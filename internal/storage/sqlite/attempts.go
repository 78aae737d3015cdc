package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/storage"
)

// BeginAttempt inserts a pending attempt row for (receipt, role) if none
// exists; otherwise the existing row is loaded back into a, with failed
// rows transitioned back to pending.
func (s *SQLiteStore) BeginAttempt(ctx context.Context, a *models.SettlementAttempt) error {
	existing, err := s.getAttempt(ctx, a.ReceiptID, a.LegRole)
	if err == nil {
		// A failed leg being retried goes back to pending so the audit
		// trail shows it in flight, not terminally failed. The attempt
		// count and last error survive the reset.
		if existing.Status == models.AttemptFailed {
			if err := s.updateAttempt(ctx, a.ReceiptID, a.LegRole,
				"status = ?", models.AttemptPending); err != nil {
				return err
			}
			existing.Status = models.AttemptPending
		}
		*a = *existing
		return nil
	}
	if err != storage.ErrNotFound {
		return err
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	a.UpdatedAt = a.CreatedAt
	a.Status = models.AttemptPending

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settlement_attempts
		 (id, receipt_id, leg_role, destination, amount, status, ledger_tx_id, attempt_count, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?, ?)`,
		a.ID, a.ReceiptID, a.LegRole, a.Destination, a.Amount.String(),
		a.Status, a.AttemptCount, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// IncrementAttempt bumps the submission counter for a leg.
func (s *SQLiteStore) IncrementAttempt(ctx context.Context, receiptID, legRole string) error {
	return s.updateAttempt(ctx, receiptID, legRole,
		"attempt_count = attempt_count + 1")
}

// MarkSubmitted records ledger acceptance with the latest transaction ID.
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, receiptID, legRole, ledgerTxID string) error {
	return s.updateAttempt(ctx, receiptID, legRole,
		"status = ?, ledger_tx_id = ?", models.AttemptSubmitted, ledgerTxID)
}

// MarkConfirmed transitions a leg to confirmed and clears its last error.
func (s *SQLiteStore) MarkConfirmed(ctx context.Context, receiptID, legRole string) error {
	return s.updateAttempt(ctx, receiptID, legRole,
		"status = ?, last_error = NULL", models.AttemptConfirmed)
}

// MarkFailed transitions a leg to failed with its last error.
func (s *SQLiteStore) MarkFailed(ctx context.Context, receiptID, legRole, cause string) error {
	return s.updateAttempt(ctx, receiptID, legRole,
		"status = ?, last_error = ?", models.AttemptFailed, cause)
}

// GetAttempts returns all attempt rows for a receipt in insertion order.
func (s *SQLiteStore) GetAttempts(ctx context.Context, receiptID string) ([]*models.SettlementAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		attemptColumns+" FROM settlement_attempts WHERE receipt_id = ? ORDER BY created_at, rowid",
		receiptID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListOpenAttempts returns every non-confirmed attempt row, oldest first.
func (s *SQLiteStore) ListOpenAttempts(ctx context.Context) ([]*models.SettlementAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		attemptColumns+" FROM settlement_attempts WHERE status != ? ORDER BY created_at, rowid",
		models.AttemptConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

const attemptColumns = `SELECT id, receipt_id, leg_role, destination, amount, status,
	ledger_tx_id, attempt_count, last_error, created_at, updated_at`

func (s *SQLiteStore) getAttempt(ctx context.Context, receiptID, legRole string) (*models.SettlementAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		attemptColumns+" FROM settlement_attempts WHERE receipt_id = ? AND leg_role = ?",
		receiptID, legRole,
	)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) updateAttempt(ctx context.Context, receiptID, legRole, set string, args ...any) error {
	args = append(args, time.Now().Unix(), receiptID, legRole)
	res, err := s.db.ExecContext(ctx,
		"UPDATE settlement_attempts SET "+set+", updated_at = ? WHERE receipt_id = ? AND leg_role = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check attempt update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attempt not found: %s/%s: %w", receiptID, legRole, storage.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*models.SettlementAttempt, error) {
	a := &models.SettlementAttempt{}
	var amount string
	var txID, lastErr sql.NullString

	err := row.Scan(&a.ID, &a.ReceiptID, &a.LegRole, &a.Destination, &amount,
		&a.Status, &txID, &a.AttemptCount, &lastErr, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsed, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt amount %q for attempt %s", amount, a.ID)
	}
	a.Amount = parsed
	if txID.Valid {
		a.LedgerTxID = txID.String
	}
	if lastErr.Valid {
		a.LastError = lastErr.String
	}
	return a, nil
}

func scanAttempts(rows *sql.Rows) ([]*models.SettlementAttempt, error) {
	var attempts []*models.SettlementAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}
	return attempts, nil
}
