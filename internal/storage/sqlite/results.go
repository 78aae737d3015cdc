package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/storage"
)

// SaveResult upserts the aggregate outcome for a receipt. Per-leg detail
// lives in the attempt rows; only the verdict is stored here.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *models.SettlementResult) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_results (receipt_id, overall_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(receipt_id) DO UPDATE SET overall_status = excluded.overall_status, updated_at = excluded.updated_at`,
		result.ReceiptID, result.OverallStatus, result.CreatedAt, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResult returns the stored outcome with legs rebuilt from attempt rows.
func (s *SQLiteStore) GetResult(ctx context.Context, receiptID string) (*models.SettlementResult, error) {
	result := &models.SettlementResult{ReceiptID: receiptID}
	err := s.db.QueryRowContext(ctx,
		"SELECT overall_status, created_at FROM settlement_results WHERE receipt_id = ?",
		receiptID,
	).Scan(&result.OverallStatus, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	attempts, err := s.GetAttempts(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		result.Legs = append(result.Legs, models.LegResult{
			Role:       a.LegRole,
			LedgerTxID: a.LedgerTxID,
			Status:     a.Status,
		})
	}
	return result, nil
}
