package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trollcity/coin-service/internal/models"
)

type TierRepository struct {
	db *sql.DB
}

func NewTierRepository(db *sql.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) GetByCoinAmount(ctx context.Context, coins int64) (*models.CashoutTier, error) {
	const query = `
SELECT id, coin_amount, usd_value, processing_fee_percentage, created_at
FROM cashout_tiers WHERE coin_amount = ?`
	var t models.CashoutTier
	err := r.db.QueryRowContext(ctx, query, coins).Scan(&t.ID, &t.CoinAmount, &t.USDValue, &t.ProcessingFeePercent, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan tier: %w", err)
	}
	return &t, nil
}

func (r *TierRepository) List(ctx context.Context) ([]models.CashoutTier, error) {
	const query = `
SELECT id, coin_amount, usd_value, processing_fee_percentage, created_at
FROM cashout_tiers ORDER BY coin_amount ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var out []models.CashoutTier
	for rows.Next() {
		var t models.CashoutTier
		if err := rows.Scan(&t.ID, &t.CoinAmount, &t.USDValue, &t.ProcessingFeePercent, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Upsert replaces a tier's USD value and fee percentage. Running requests are
// unaffected: the fee is frozen onto the request when it enters processing.
func (r *TierRepository) Upsert(ctx context.Context, t *models.CashoutTier) error {
	const query = `
INSERT INTO cashout_tiers (coin_amount, usd_value, processing_fee_percentage)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE usd_value = VALUES(usd_value), processing_fee_percentage = VALUES(processing_fee_percentage)`
	if _, err := r.db.ExecContext(ctx, query, t.CoinAmount, t.USDValue, t.ProcessingFeePercent); err != nil {
		return fmt.Errorf("upsert tier: %w", err)
	}
	return nil
}

func (r *TierRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cashout_tiers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tiers: %w", err)
	}
	return n, nil
}
