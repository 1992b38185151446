package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
)

type cashoutStore interface {
	Create(ctx context.Context, req *models.CashoutRequest) (*models.CashoutRequest, error)
	GetByID(ctx context.Context, id int64) (*models.CashoutRequest, error)
	List(ctx context.Context, f repository.CashoutFilter) ([]models.CashoutRequest, error)
	MarkProcessing(ctx context.Context, id int64, feePct, fee, net decimal.Decimal) error
	FinalizePaid(ctx context.Context, id int64, fromStatuses []models.CashoutStatus, fee, net decimal.Decimal, ref, notes string, ledger *models.CoinTransaction) error
	Reject(ctx context.Context, id int64, notes string) error
	AppendPaidNote(ctx context.Context, id int64, note string) error
}

type tierStore interface {
	GetByCoinAmount(ctx context.Context, coins int64) (*models.CashoutTier, error)
	List(ctx context.Context) ([]models.CashoutTier, error)
	Upsert(ctx context.Context, t *models.CashoutTier) error
	Count(ctx context.Context) (int, error)
}

type balanceInvalidator interface {
	InvalidateBalance(ctx context.Context, userID int64)
}

// CashoutService drives the payout state machine: pending → processing → paid,
// pending → rejected. Amounts are frozen when they are resolved; later tier
// edits never change an in-flight request.
type CashoutService struct {
	cashouts   cashoutStore
	tiers      tierStore
	users      userReader
	ledger     balanceInvalidator
	usdPerCoin decimal.Decimal
	log        *slog.Logger
}

func NewCashoutService(cashouts cashoutStore, tiers tierStore, users userReader, ledger balanceInvalidator, coinUSDRate float64, log *slog.Logger) *CashoutService {
	return &CashoutService{
		cashouts:   cashouts,
		tiers:      tiers,
		users:      users,
		ledger:     ledger,
		usdPerCoin: decimal.NewFromFloat(coinUSDRate),
		log:        log,
	}
}

type CreateCashoutInput struct {
	UserID         int64
	RequestedCoins int64
	PayoutMethod   string
	PayoutDetails  string
}

// Create opens a pending request. Coins stay spendable until the request is
// paid; creation only checks the balance covers the amount right now.
func (s *CashoutService) Create(ctx context.Context, in CreateCashoutInput) (*models.CashoutRequest, error) {
	if in.RequestedCoins <= 0 {
		return nil, fmt.Errorf("%w: requested coins must be positive", ErrValidation)
	}
	if in.PayoutMethod == "" {
		return nil, fmt.Errorf("%w: payout method is required", ErrValidation)
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrBanned
	}
	if user.PaidCoins < in.RequestedCoins {
		return nil, repository.ErrInsufficientFunds
	}

	usd := s.usdValueFor(ctx, in.RequestedCoins)
	req, err := s.cashouts.Create(ctx, &models.CashoutRequest{
		UserID:         in.UserID,
		RequestedCoins: in.RequestedCoins,
		USDValue:       usd,
		Status:         models.CashoutPending,
		PayoutMethod:   in.PayoutMethod,
		PayoutDetails:  in.PayoutDetails,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cashout requested", "cashout", req.ID, "user", in.UserID, "coins", in.RequestedCoins, "usd", usd.StringFixed(2))
	return req, nil
}

func (s *CashoutService) GetByID(ctx context.Context, id int64) (*models.CashoutRequest, error) {
	return s.cashouts.GetByID(ctx, id)
}

func (s *CashoutService) List(ctx context.Context, f repository.CashoutFilter) ([]models.CashoutRequest, error) {
	return s.cashouts.List(ctx, f)
}

func (s *CashoutService) ListForUser(ctx context.Context, userID int64) ([]models.CashoutRequest, error) {
	return s.cashouts.List(ctx, repository.CashoutFilter{UserID: userID})
}

// Process resolves and freezes the fee, then moves pending → processing.
func (s *CashoutService) Process(ctx context.Context, id int64) (*models.CashoutRequest, error) {
	req, err := s.cashouts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pct := s.feePercentFor(ctx, req.RequestedCoins)
	fee := feeOn(req.USDValue, pct)
	net := req.USDValue.Sub(fee)
	if err := s.cashouts.MarkProcessing(ctx, id, pct, fee, net); err != nil {
		return nil, err
	}
	s.log.Info("cashout processing", "cashout", id, "fee_pct", pct.String(), "fee", fee.StringFixed(2), "net", net.StringFixed(2))
	return s.cashouts.GetByID(ctx, id)
}

// MarkPaid settles a processing request: the frozen tier fee applies, plus a
// 1% surcharge on gross when the account is flagged or banned. The coins are
// debited and the cashout ledger entry written in the same transaction as the
// status change.
func (s *CashoutService) MarkPaid(ctx context.Context, id int64, ref, notes string) (*models.CashoutRequest, error) {
	return s.settle(ctx, id, []models.CashoutStatus{models.CashoutProcessing}, ref, notes)
}

// Complete settles in one shot from pending or processing. A still-pending
// request never had its fee resolved, so it settles at the resolved tier fee
// computed now.
func (s *CashoutService) Complete(ctx context.Context, id int64, ref, notes string) (*models.CashoutRequest, error) {
	return s.settle(ctx, id, []models.CashoutStatus{models.CashoutPending, models.CashoutProcessing}, ref, notes)
}

func (s *CashoutService) settle(ctx context.Context, id int64, from []models.CashoutStatus, ref, notes string) (*models.CashoutRequest, error) {
	req, err := s.cashouts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, st := range from {
		if req.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return nil, repository.ErrInvalidTransition
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	pct := req.FeePercentage
	if req.Status == models.CashoutPending {
		pct = s.feePercentFor(ctx, req.RequestedCoins)
	}
	surcharge := decimal.Zero
	if user.IsFlagged || user.IsBanned {
		surcharge = feeOn(req.USDValue, decimal.NewFromInt(1))
	}
	fee := feeOn(req.USDValue, pct).Add(surcharge)
	net := req.USDValue.Sub(fee)

	metadata := fmt.Sprintf(`{"cashout_id":%d,"gross_usd":%q,"fee_usd":%q,"surcharge_usd":%q,"net_usd":%q,"ref":%q}`,
		req.ID, req.USDValue.StringFixed(2), fee.StringFixed(2), surcharge.StringFixed(2), net.StringFixed(2), ref)
	ledger := &models.CoinTransaction{
		UserID:      req.UserID,
		Amount:      -req.RequestedCoins,
		CoinType:    models.CoinTypePaid,
		Category:    models.CategoryCashout,
		Description: fmt.Sprintf("Cashout #%d paid out at $%s", req.ID, net.StringFixed(2)),
		Metadata:    metadata,
	}

	note := notes
	if note != "" && !strings.HasSuffix(note, "\n") {
		note += "\n"
	}
	if !surcharge.IsZero() {
		note += fmt.Sprintf("flagged-account surcharge $%s applied\n", surcharge.StringFixed(2))
	}
	if err := s.cashouts.FinalizePaid(ctx, id, from, fee, net, ref, note, ledger); err != nil {
		return nil, err
	}
	s.ledger.InvalidateBalance(ctx, req.UserID)

	s.log.Info("cashout paid", "cashout", id, "user", req.UserID, "net", net.StringFixed(2), "ref", ref)
	return s.cashouts.GetByID(ctx, id)
}

// Reject is terminal and only valid from pending.
func (s *CashoutService) Reject(ctx context.Context, id int64, reason string) (*models.CashoutRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	if err := s.cashouts.Reject(ctx, id, reason+"\n"); err != nil {
		return nil, err
	}
	s.log.Info("cashout rejected", "cashout", id)
	return s.cashouts.GetByID(ctx, id)
}

// MarkCompleted stores a reconciliation reference on an already-paid request.
// No state change and no fee recompute.
func (s *CashoutService) MarkCompleted(ctx context.Context, id int64, paymentRef string) (*models.CashoutRequest, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("%w: payment reference is required", ErrValidation)
	}
	note := fmt.Sprintf("completed ref=%s\n", paymentRef)
	if err := s.cashouts.AppendPaidNote(ctx, id, note); err != nil {
		return nil, err
	}
	return s.cashouts.GetByID(ctx, id)
}

func (s *CashoutService) ListTiers(ctx context.Context) ([]models.CashoutTier, error) {
	return s.tiers.List(ctx)
}

func (s *CashoutService) UpsertTier(ctx context.Context, t *models.CashoutTier) error {
	if t.CoinAmount <= 0 {
		return fmt.Errorf("%w: tier coin amount must be positive", ErrValidation)
	}
	if t.USDValue.IsNegative() || t.ProcessingFeePercent.IsNegative() {
		return fmt.Errorf("%w: tier amounts cannot be negative", ErrValidation)
	}
	return s.tiers.Upsert(ctx, t)
}

// EnsureDefaultTiers seeds the standard payout tiers on a fresh database.
// Existing rows are left alone.
func (s *CashoutService) EnsureDefaultTiers(ctx context.Context) error {
	n, err := s.tiers.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	defaults := []models.CashoutTier{
		{CoinAmount: 7000, USDValue: decimal.NewFromFloat(21.00), ProcessingFeePercent: decimal.NewFromInt(4)},
		{CoinAmount: 14000, USDValue: decimal.NewFromFloat(49.50), ProcessingFeePercent: decimal.NewFromInt(9)},
		{CoinAmount: 27000, USDValue: decimal.NewFromFloat(90.00), ProcessingFeePercent: decimal.NewFromInt(18)},
		{CoinAmount: 47000, USDValue: decimal.NewFromFloat(155.00), ProcessingFeePercent: decimal.NewFromInt(25)},
	}
	for i := range defaults {
		if err := s.tiers.Upsert(ctx, &defaults[i]); err != nil {
			return fmt.Errorf("seed tier %d: %w", defaults[i].CoinAmount, err)
		}
	}
	s.log.Info("seeded default cashout tiers", "count", len(defaults))
	return nil
}

// feePercentFor prefers the exact tier; off-tier amounts fall back to the
// threshold schedule so legacy requests still resolve a fee.
func (s *CashoutService) feePercentFor(ctx context.Context, coins int64) decimal.Decimal {
	tier, err := s.tiers.GetByCoinAmount(ctx, coins)
	if err == nil {
		return tier.ProcessingFeePercent
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("tier lookup failed, using threshold fallback", "coins", coins, "err", err)
	}
	switch {
	case coins >= 47000:
		return decimal.NewFromInt(25)
	case coins >= 27000:
		return decimal.NewFromInt(18)
	case coins >= 14000:
		return decimal.NewFromInt(9)
	case coins >= 7000:
		return decimal.NewFromInt(4)
	}
	return decimal.Zero
}

func (s *CashoutService) usdValueFor(ctx context.Context, coins int64) decimal.Decimal {
	tier, err := s.tiers.GetByCoinAmount(ctx, coins)
	if err == nil {
		return tier.USDValue
	}
	return decimal.NewFromInt(coins).Mul(s.usdPerCoin).Round(2)
}

// feeOn computes pct% of gross, rounded to cents.
func feeOn(gross, pct decimal.Decimal) decimal.Decimal {
	return gross.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}
