package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trollcity/coin-service/internal/models"
)

type PackageRepository struct {
	db *sql.DB
}

func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

const packageColumns = `id, name, coins, amount_cents, COALESCE(stripe_price_id, ''), is_active, created_at, updated_at`

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.CoinPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM coin_packages WHERE id = ?`
	var p models.CoinPackage
	var active int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Coins, &p.AmountCents,
		&p.StripePriceID, &active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	p.IsActive = active != 0
	return &p, nil
}

func (r *PackageRepository) List(ctx context.Context, activeOnly bool) ([]models.CoinPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM coin_packages`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY amount_cents ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var out []models.CoinPackage
	for rows.Next() {
		var p models.CoinPackage
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.Coins, &p.AmountCents, &p.StripePriceID,
			&active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		p.IsActive = active != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PackageRepository) Create(ctx context.Context, p *models.CoinPackage) (*models.CoinPackage, error) {
	const query = `
INSERT INTO coin_packages (name, coins, amount_cents, stripe_price_id, is_active)
VALUES (?, ?, ?, NULLIF(?, ''), ?)`
	active := 0
	if p.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, query, p.Name, p.Coins, p.AmountCents, p.StripePriceID, active)
	if err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("package insert id: %w", err)
	}
	p.ID = id
	return p, nil
}
