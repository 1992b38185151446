package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
)

type walletLedger interface {
	GetBalance(ctx context.Context, userID int64) (paid, free int64, err error)
	ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]models.CoinTransaction, error)
	Adjust(ctx context.Context, p repository.AdjustParams) (int64, error)
}

type WalletService struct {
	ledger walletLedger
	users  userReader
	log    *slog.Logger
}

func NewWalletService(ledger walletLedger, users userReader, log *slog.Logger) *WalletService {
	return &WalletService{ledger: ledger, users: users, log: log}
}

type Wallet struct {
	UserID           int64
	PaidCoins        int64
	FreeCoins        int64
	TotalEarnedCoins int64
	TotalSpentCoins  int64
}

func (s *WalletService) Get(ctx context.Context, userID int64) (*Wallet, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Spendable counters go through the cached read path.
	paid, free, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		UserID:           userID,
		PaidCoins:        paid,
		FreeCoins:        free,
		TotalEarnedCoins: user.TotalEarnedCoins,
		TotalSpentCoins:  user.TotalSpentCoins,
	}, nil
}

func (s *WalletService) Transactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]models.CoinTransaction, error) {
	return s.ledger.ListTransactions(ctx, userID, f)
}

type GrantInput struct {
	UserID      int64
	Amount      int64 // signed: negative revokes
	CoinType    models.CoinType
	Reason      string
	AdminUserID int64
}

// Grant applies an admin adjustment. Revocations that would drive the counter
// negative are rejected by the ledger.
func (s *WalletService) Grant(ctx context.Context, in GrantInput) (int64, error) {
	if in.Amount == 0 {
		return 0, fmt.Errorf("%w: amount cannot be zero", ErrValidation)
	}
	if in.CoinType != models.CoinTypePaid && in.CoinType != models.CoinTypeFree {
		return 0, fmt.Errorf("%w: unknown coin type %q", ErrValidation, in.CoinType)
	}
	if in.Reason == "" {
		return 0, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	balance, err := s.ledger.Adjust(ctx, repository.AdjustParams{
		UserID:      in.UserID,
		Amount:      in.Amount,
		CoinType:    in.CoinType,
		Category:    models.CategoryAdminAdjustment,
		Description: in.Reason,
		Metadata:    fmt.Sprintf(`{"admin_user_id":%d}`, in.AdminUserID),
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("admin coin grant", "user", in.UserID, "amount", in.Amount, "coin_type", in.CoinType, "admin", in.AdminUserID)
	return balance, nil
}
