package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trollcity/coin-service/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, COALESCE(email, ''), role, paid_coins, free_coins, total_earned_coins, total_spent_coins, is_partner, is_flagged, is_banned, COALESCE(api_token, ''), created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var partner, flagged, banned int
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PaidCoins, &u.FreeCoins,
		&u.TotalEarnedCoins, &u.TotalSpentCoins, &partner, &flagged, &banned, &u.APIToken,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsPartner = partner != 0
	u.IsFlagged = flagged != 0
	u.IsBanned = banned != 0
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByAPIToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE api_token = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (username, email, role, paid_coins, free_coins, is_partner, api_token)
VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''))`
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}
	partner := 0
	if user.IsPartner {
		partner = 1
	}
	res, err := r.db.ExecContext(ctx, query, user.Username, user.Email, role,
		user.PaidCoins, user.FreeCoins, partner, user.APIToken)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	user.Role = role
	return user, nil
}

func (r *UserRepository) SetFlagged(ctx context.Context, userID int64, flagged bool) error {
	v := 0
	if flagged {
		v = 1
	}
	const query = `UPDATE users SET is_flagged = ?, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, v, userID)
	if err != nil {
		return fmt.Errorf("update flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.FindByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	v := 0
	if banned {
		v = 1
	}
	const query = `UPDATE users SET is_banned = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, v, userID); err != nil {
		return fmt.Errorf("update ban: %w", err)
	}
	return nil
}
