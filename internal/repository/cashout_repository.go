package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trollcity/coin-service/internal/models"
)

type CashoutRepository struct {
	db *sql.DB
}

func NewCashoutRepository(db *sql.DB) *CashoutRepository {
	return &CashoutRepository{db: db}
}

const cashoutColumns = `id, user_id, requested_coins, usd_value, status, fee_percentage, fee_applied, usd_after_fee,
COALESCE(payout_method, ''), COALESCE(payout_details, ''), COALESCE(transaction_ref, ''), COALESCE(admin_notes, ''),
processed_at, paid_at, created_at, updated_at`

func scanCashout(scanner interface{ Scan(...any) error }) (*models.CashoutRequest, error) {
	var r models.CashoutRequest
	err := scanner.Scan(&r.ID, &r.UserID, &r.RequestedCoins, &r.USDValue, &r.Status,
		&r.FeePercentage, &r.FeeApplied, &r.USDAfterFee, &r.PayoutMethod, &r.PayoutDetails,
		&r.TransactionRef, &r.AdminNotes, &r.ProcessedAt, &r.PaidAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cashout: %w", err)
	}
	return &r, nil
}

func (r *CashoutRepository) Create(ctx context.Context, req *models.CashoutRequest) (*models.CashoutRequest, error) {
	const query = `
INSERT INTO cashout_requests (user_id, requested_coins, usd_value, status, payout_method, payout_details)
VALUES (?, ?, ?, 'pending', NULLIF(?, ''), NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, req.UserID, req.RequestedCoins,
		req.USDValue, req.PayoutMethod, req.PayoutDetails)
	if err != nil {
		return nil, fmt.Errorf("insert cashout: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("cashout insert id: %w", err)
	}
	req.ID = id
	req.Status = models.CashoutPending
	return req, nil
}

func (r *CashoutRepository) GetByID(ctx context.Context, id int64) (*models.CashoutRequest, error) {
	query := `SELECT ` + cashoutColumns + ` FROM cashout_requests WHERE id = ?`
	return scanCashout(r.db.QueryRowContext(ctx, query, id))
}

type CashoutFilter struct {
	Status   models.CashoutStatus
	Provider string
	Query    string
	UserID   int64
	Limit    int
}

func (r *CashoutRepository) List(ctx context.Context, f CashoutFilter) ([]models.CashoutRequest, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 200
	}
	query := `SELECT ` + cashoutColumns + ` FROM cashout_requests WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Provider != "" {
		query += ` AND payout_method = ?`
		args = append(args, f.Provider)
	}
	if f.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		query += ` AND payout_details LIKE ?`
		args = append(args, "%"+q+"%")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cashouts: %w", err)
	}
	defer rows.Close()

	var out []models.CashoutRequest
	for rows.Next() {
		req, err := scanCashout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// MarkProcessing freezes the resolved fee onto the request. The status update
// is a compare-and-swap from pending; a request in any other state is left
// untouched and ErrInvalidTransition is returned.
func (r *CashoutRepository) MarkProcessing(ctx context.Context, id int64, feePct, fee, net decimal.Decimal) error {
	const query = `
UPDATE cashout_requests
SET status = 'processing', fee_percentage = ?, fee_applied = ?, usd_after_fee = ?,
    admin_notes = CONCAT(COALESCE(admin_notes, ''), ?), processed_at = NOW(), updated_at = NOW()
WHERE id = ? AND status = 'pending'`
	note := fmt.Sprintf("fee=%s;net=%s\n", fee.StringFixed(2), net.StringFixed(2))
	res, err := r.db.ExecContext(ctx, query, feePct, fee, net, note, id)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return r.casOutcome(ctx, res, id)
}

// FinalizePaid moves the request to paid and, in the same transaction,
// debits the user's paid coins and appends the cashout ledger entry.
// fromStatuses guards the compare-and-swap.
func (r *CashoutRepository) FinalizePaid(ctx context.Context, id int64, fromStatuses []models.CashoutStatus, fee, net decimal.Decimal, ref, notes string, ledger *models.CoinTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cashout tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(fromStatuses))
	args := []any{fee, net, ref, notes, id}
	for i, s := range fromStatuses {
		placeholders[i] = "?"
		args = append(args, s)
	}
	query := fmt.Sprintf(`
UPDATE cashout_requests
SET status = 'paid', fee_applied = ?, usd_after_fee = ?, transaction_ref = NULLIF(?, ''),
    admin_notes = CONCAT(COALESCE(admin_notes, ''), ?), paid_at = NOW(), updated_at = NOW()
WHERE id = ? AND status IN (%s)`, strings.Join(placeholders, ","))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize cashout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize cashout rows: %w", err)
	}
	if n == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}

	// Guarded debit of the paid counter; the requested coins leave the
	// spendable balance only when the payout actually happens.
	u, err := lockUser(ctx, tx, ledger.UserID)
	if err != nil {
		return err
	}
	debit := -ledger.Amount // ledger amount is negative
	if u.paidCoins < debit {
		return ErrInsufficientFunds
	}
	const debitQuery = `UPDATE users SET paid_coins = paid_coins - ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, debitQuery, debit, ledger.UserID); err != nil {
		return fmt.Errorf("debit cashout coins: %w", err)
	}
	ledger.BalanceAfter = u.paidCoins - debit
	if err := insertTransaction(ctx, tx, ledger); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cashout tx: %w", err)
	}
	return nil
}

// Reject is terminal and only valid from pending.
func (r *CashoutRepository) Reject(ctx context.Context, id int64, notes string) error {
	const query = `
UPDATE cashout_requests
SET status = 'rejected', admin_notes = CONCAT(COALESCE(admin_notes, ''), ?), updated_at = NOW()
WHERE id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, notes, id)
	if err != nil {
		return fmt.Errorf("reject cashout: %w", err)
	}
	return r.casOutcome(ctx, res, id)
}

// AppendPaidNote stores a reconciliation reference on an already-paid
// request without touching the frozen amounts.
func (r *CashoutRepository) AppendPaidNote(ctx context.Context, id int64, note string) error {
	const query = `
UPDATE cashout_requests
SET admin_notes = CONCAT(COALESCE(admin_notes, ''), ?), updated_at = NOW()
WHERE id = ? AND status = 'paid'`
	res, err := r.db.ExecContext(ctx, query, note, id)
	if err != nil {
		return fmt.Errorf("append paid note: %w", err)
	}
	return r.casOutcome(ctx, res, id)
}

func (r *CashoutRepository) casOutcome(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}
