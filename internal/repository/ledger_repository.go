package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/trollcity/coin-service/internal/models"
)

// LedgerRepository owns every balance mutation. Each mutation runs inside a
// single transaction that locks the affected user rows and appends the
// matching coin_transactions entries, so a partial write can never leave a
// debited sender without a ledger trace.
type LedgerRepository struct {
	db    *sql.DB
	cache *BalanceCache
	log   *slog.Logger
}

func NewLedgerRepository(db *sql.DB, cache *BalanceCache, log *slog.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, cache: cache, log: log}
}

type GiftParams struct {
	SenderID   int64
	ReceiverID int64
	StreamID   string
	GiftName   string
	CoinAmount int64
	CoinType   models.CoinType
	Metadata   string
}

type GiftResult struct {
	GiftID        int64
	SenderBalance int64
	BonusAmount   int64
}

// SendGift moves coins from sender to receiver as one transaction:
// guarded debit, sender ledger entry, receiver earned-counter credit
// (with the partner bonus), receiver ledger entry, gift row, chat
// announcement. Any failure rolls the whole sequence back.
func (r *LedgerRepository) SendGift(ctx context.Context, p GiftParams) (*GiftResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin gift tx: %w", err)
	}
	defer tx.Rollback()

	// Lock both parties in id order so two opposite gifts cannot deadlock.
	first, second := p.SenderID, p.ReceiverID
	if second < first {
		first, second = second, first
	}
	users := map[int64]*lockedUser{}
	for _, id := range []int64{first, second} {
		u, err := lockUser(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		users[id] = u
	}
	sender := users[p.SenderID]
	receiver := users[p.ReceiverID]

	balance := sender.paidCoins
	column := "paid_coins"
	if p.CoinType == models.CoinTypeFree {
		balance = sender.freeCoins
		column = "free_coins"
	}
	if balance < p.CoinAmount {
		return nil, ErrInsufficientFunds
	}
	newBalance := balance - p.CoinAmount

	debit := fmt.Sprintf(`UPDATE users SET %s = %s - ?, total_spent_coins = total_spent_coins + ?, updated_at = NOW() WHERE id = ?`, column, column)
	if _, err := tx.ExecContext(ctx, debit, p.CoinAmount, p.CoinAmount, p.SenderID); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}

	if err := insertTransaction(ctx, tx, &models.CoinTransaction{
		UserID:       p.SenderID,
		Amount:       -p.CoinAmount,
		CoinType:     p.CoinType,
		Category:     models.CategoryGiftSent,
		Description:  fmt.Sprintf("Sent %s", p.GiftName),
		Metadata:     p.Metadata,
		BalanceAfter: newBalance,
	}); err != nil {
		return nil, err
	}

	// The received amount lands on the lifetime-earned reporting counter,
	// not on a spendable balance. Partner receivers earn a 10% bonus.
	var bonus int64
	if receiver.isPartner {
		bonus = p.CoinAmount / 10
	}
	earned := p.CoinAmount + bonus
	const credit = `UPDATE users SET total_earned_coins = total_earned_coins + ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, credit, earned, p.ReceiverID); err != nil {
		return nil, fmt.Errorf("credit receiver: %w", err)
	}

	receiverBalance := receiver.paidCoins
	if p.CoinType == models.CoinTypeFree {
		receiverBalance = receiver.freeCoins
	}
	if err := insertTransaction(ctx, tx, &models.CoinTransaction{
		UserID:       p.ReceiverID,
		Amount:       earned,
		CoinType:     p.CoinType,
		Category:     models.CategoryGiftReceived,
		Description:  fmt.Sprintf("Received %s", p.GiftName),
		Metadata:     p.Metadata,
		BalanceAfter: receiverBalance,
	}); err != nil {
		return nil, err
	}

	const giftInsert = `
INSERT INTO gifts (sender_id, receiver_id, stream_id, name, coin_amount, coin_type, bonus_amount)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, giftInsert, p.SenderID, p.ReceiverID, p.StreamID,
		p.GiftName, p.CoinAmount, p.CoinType, bonus)
	if err != nil {
		return nil, fmt.Errorf("insert gift: %w", err)
	}
	giftID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("gift insert id: %w", err)
	}

	const msgInsert = `
INSERT INTO chat_messages (stream_id, user_id, receiver_id, content, message_type, gift_amount)
VALUES (NULLIF(?, ''), ?, ?, ?, 'gift', ?)`
	content := fmt.Sprintf("%s sent %s (%d coins)", sender.username, p.GiftName, p.CoinAmount)
	if _, err := tx.ExecContext(ctx, msgInsert, p.StreamID, p.SenderID, p.ReceiverID, content, p.CoinAmount); err != nil {
		return nil, fmt.Errorf("insert gift announcement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit gift tx: %w", err)
	}

	r.invalidate(ctx, p.SenderID, p.ReceiverID)

	return &GiftResult{GiftID: giftID, SenderBalance: newBalance, BonusAmount: bonus}, nil
}

type AdjustParams struct {
	UserID      int64
	Amount      int64 // signed
	CoinType    models.CoinType
	Category    models.TransactionCategory
	Description string
	Metadata    string
}

// Adjust applies a signed balance change with the same guard as gifts:
// a debit that would drive the counter negative is rejected outright.
func (r *LedgerRepository) Adjust(ctx context.Context, p AdjustParams) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin adjust tx: %w", err)
	}
	defer tx.Rollback()

	u, err := lockUser(ctx, tx, p.UserID)
	if err != nil {
		return 0, err
	}

	balance := u.paidCoins
	column := "paid_coins"
	if p.CoinType == models.CoinTypeFree {
		balance = u.freeCoins
		column = "free_coins"
	}
	newBalance := balance + p.Amount
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}

	update := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = NOW() WHERE id = ?`, column)
	if _, err := tx.ExecContext(ctx, update, newBalance, p.UserID); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	if err := insertTransaction(ctx, tx, &models.CoinTransaction{
		UserID:       p.UserID,
		Amount:       p.Amount,
		CoinType:     p.CoinType,
		Category:     p.Category,
		Description:  p.Description,
		Metadata:     p.Metadata,
		BalanceAfter: newBalance,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit adjust tx: %w", err)
	}

	r.invalidate(ctx, p.UserID)

	return newBalance, nil
}

// GetBalance reads the two spendable counters, through the Redis cache when
// one is configured.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID int64) (paid, free int64, err error) {
	if r.cache != nil {
		if paid, free, ok := r.cache.Get(ctx, userID); ok {
			return paid, free, nil
		}
	}

	const query = `SELECT paid_coins, free_coins FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	if err := row.Scan(&paid, &free); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("scan balance: %w", err)
	}
	if r.cache != nil {
		r.cache.Set(ctx, userID, paid, free)
	}
	return paid, free, nil
}

type TransactionFilter struct {
	Category models.TransactionCategory
	Limit    int
	Offset   int
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]models.CoinTransaction, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	query := `
SELECT id, user_id, amount, coin_type, category, COALESCE(description, ''), COALESCE(metadata, ''), balance_after, created_at
FROM coin_transactions WHERE user_id = ?`
	args := []any{userID}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.CoinTransaction
	for rows.Next() {
		var t models.CoinTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.CoinType, &t.Category,
			&t.Description, &t.Metadata, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InvalidateBalance drops any cached balance for the user. Callers that
// mutate counters outside this repository use it to keep reads fresh.
func (r *LedgerRepository) InvalidateBalance(ctx context.Context, userID int64) {
	r.invalidate(ctx, userID)
}

func (r *LedgerRepository) invalidate(ctx context.Context, userIDs ...int64) {
	if r.cache == nil {
		return
	}
	for _, id := range userIDs {
		if err := r.cache.Delete(ctx, id); err != nil {
			r.log.Warn("balance cache invalidation failed", "user", id, "err", err)
		}
	}
}

type lockedUser struct {
	id        int64
	username  string
	paidCoins int64
	freeCoins int64
	isPartner bool
}

func lockUser(ctx context.Context, tx *sql.Tx, id int64) (*lockedUser, error) {
	const query = `SELECT id, username, paid_coins, free_coins, is_partner FROM users WHERE id = ? FOR UPDATE`
	var u lockedUser
	var partner int
	if err := tx.QueryRowContext(ctx, query, id).Scan(&u.id, &u.username, &u.paidCoins, &u.freeCoins, &partner); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock user %d: %w", id, err)
	}
	u.isPartner = partner != 0
	return &u, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.CoinTransaction) error {
	const query = `
INSERT INTO coin_transactions (user_id, amount, coin_type, category, description, metadata, balance_after)
VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	if _, err := tx.ExecContext(ctx, query, t.UserID, t.Amount, t.CoinType, t.Category,
		t.Description, t.Metadata, t.BalanceAfter); err != nil {
		return fmt.Errorf("insert coin transaction: %w", err)
	}
	return nil
}
