package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"

	"github.com/trollcity/coin-service/internal/models"
)

type OrderRepository struct {
	db    *sql.DB
	cache *BalanceCache
	log   *slog.Logger
}

func NewOrderRepository(db *sql.DB, cache *BalanceCache, log *slog.Logger) *OrderRepository {
	return &OrderRepository{db: db, cache: cache, log: log}
}

const orderColumns = `id, user_id, package_id, coins, amount_cents, provider, status,
COALESCE(checkout_session_id, ''), COALESCE(payment_intent_id, ''), COALESCE(square_payment_id, ''),
paid_at, fulfilled_at, created_at, updated_at`

func scanOrder(scanner interface{ Scan(...any) error }) (*models.CoinOrder, error) {
	var o models.CoinOrder
	err := scanner.Scan(&o.ID, &o.UserID, &o.PackageID, &o.Coins, &o.AmountCents, &o.Provider,
		&o.Status, &o.CheckoutSessionID, &o.PaymentIntentID, &o.SquarePaymentID,
		&o.PaidAt, &o.FulfilledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) Create(ctx context.Context, o *models.CoinOrder) error {
	const query = `
INSERT INTO coin_orders (id, user_id, package_id, coins, amount_cents, provider, status, checkout_session_id, payment_intent_id, square_payment_id)
VALUES (?, ?, ?, ?, ?, ?, 'created', NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, o.ID, o.UserID, o.PackageID, o.Coins,
		o.AmountCents, o.Provider, o.CheckoutSessionID, o.PaymentIntentID, o.SquarePaymentID); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.Status = models.OrderCreated
	return nil
}

func (r *OrderRepository) FindByCheckoutSession(ctx context.Context, sessionID string) (*models.CoinOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM coin_orders WHERE checkout_session_id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, query, sessionID))
}

func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.CoinOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM coin_orders WHERE payment_intent_id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, query, intentID))
}

func (r *OrderRepository) FindBySquarePayment(ctx context.Context, paymentID string) (*models.CoinOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM coin_orders WHERE square_payment_id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, query, paymentID))
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.CoinOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM coin_orders WHERE id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

// AttachPaymentIntent stores the intent id once it is known (checkout
// completion carries it; the order was created before payment started).
func (r *OrderRepository) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	const query = `UPDATE coin_orders SET payment_intent_id = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, intentID, orderID); err != nil {
		return fmt.Errorf("attach payment intent: %w", err)
	}
	return nil
}

// CreditParams identifies the webhook event and the order it settles.
type CreditParams struct {
	Provider  string
	EventID   string
	EventType string
	Payload   string
	OrderID   string
}

// CreditPaidOrder performs the idempotent crediting transaction:
//
//  1. insert the payment event under its (provider, event_id) unique key —
//     a duplicate key means this event was already handled, so the whole
//     transaction aborts with ErrDuplicateEvent and nothing is credited;
//  2. lock the order row and walk it created → paid → fulfilled;
//  3. credit the user's paid coins from the order row (never from gateway
//     metadata) and append the purchase ledger entry.
//
// Redelivery of the same event therefore credits exactly once.
func (r *OrderRepository) CreditPaidOrder(ctx context.Context, p CreditParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	const eventInsert = `
INSERT INTO payment_events (provider, event_id, event_type, payload)
VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, eventInsert, p.Provider, p.EventID, p.EventType, p.Payload); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("record payment event: %w", err)
	}

	const orderLock = `SELECT user_id, coins, status FROM coin_orders WHERE id = ? FOR UPDATE`
	var userID, coins int64
	var status models.OrderStatus
	if err := tx.QueryRowContext(ctx, orderLock, p.OrderID).Scan(&userID, &coins, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock order: %w", err)
	}

	if status == models.OrderFulfilled {
		// Already credited under a different event id; keep the audit row.
		return tx.Commit()
	}

	if status == models.OrderCreated {
		const markPaid = `UPDATE coin_orders SET status = 'paid', paid_at = NOW(), updated_at = NOW() WHERE id = ?`
		if _, err := tx.ExecContext(ctx, markPaid, p.OrderID); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
	}

	u, err := lockUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	const credit = `UPDATE users SET paid_coins = paid_coins + ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, credit, coins, userID); err != nil {
		return fmt.Errorf("credit coins: %w", err)
	}

	if err := insertTransaction(ctx, tx, &models.CoinTransaction{
		UserID:       userID,
		Amount:       coins,
		CoinType:     models.CoinTypePaid,
		Category:     models.CategoryPurchase,
		Description:  "Coin purchase",
		Metadata:     fmt.Sprintf(`{"order_id":%q,"provider":%q,"event_id":%q}`, p.OrderID, p.Provider, p.EventID),
		BalanceAfter: u.paidCoins + coins,
	}); err != nil {
		return err
	}

	const fulfill = `UPDATE coin_orders SET status = 'fulfilled', fulfilled_at = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, fulfill, p.OrderID); err != nil {
		return fmt.Errorf("fulfill order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credit tx: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Delete(ctx, userID); err != nil {
			r.log.Warn("balance cache invalidation failed", "user", userID, "err", err)
		}
	}
	return nil
}

// RecordEvent stores a webhook event outside a crediting flow (events that
// settle no order still leave an audit row). Duplicates are reported, not
// swallowed: callers decide whether a duplicate is expected.
func (r *OrderRepository) RecordEvent(ctx context.Context, provider, eventID, eventType, payload string) error {
	const query = `
INSERT INTO payment_events (provider, event_id, event_type, payload)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, provider, eventID, eventType, payload); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("record payment event: %w", err)
	}
	return nil
}
