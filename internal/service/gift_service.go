package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
)

// maxGiftCoins caps a single gift; anything larger is a payload mistake,
// not a plausible send.
const maxGiftCoins = 1_000_000

type giftLedger interface {
	SendGift(ctx context.Context, p repository.GiftParams) (*repository.GiftResult, error)
}

type userReader interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type GiftService struct {
	ledger giftLedger
	users  userReader
	log    *slog.Logger
}

func NewGiftService(ledger giftLedger, users userReader, log *slog.Logger) *GiftService {
	return &GiftService{ledger: ledger, users: users, log: log}
}

type SendGiftInput struct {
	SenderID   int64
	ReceiverID int64
	StreamID   string
	GiftName   string
	CoinAmount int64
	CoinType   models.CoinType
}

// Send validates the input and hands the debit/credit/announcement sequence
// to the ledger as one transaction.
func (s *GiftService) Send(ctx context.Context, in SendGiftInput) (*repository.GiftResult, error) {
	if in.CoinAmount <= 0 {
		return nil, fmt.Errorf("%w: coin amount must be positive", ErrValidation)
	}
	if in.CoinAmount > maxGiftCoins {
		return nil, fmt.Errorf("%w: coin amount exceeds %d", ErrValidation, maxGiftCoins)
	}
	if in.CoinType != models.CoinTypePaid && in.CoinType != models.CoinTypeFree {
		return nil, fmt.Errorf("%w: unknown coin type %q", ErrValidation, in.CoinType)
	}
	if in.SenderID == in.ReceiverID {
		return nil, fmt.Errorf("%w: cannot gift yourself", ErrValidation)
	}
	if in.GiftName == "" {
		return nil, fmt.Errorf("%w: gift name is required", ErrValidation)
	}

	sender, err := s.users.FindByID(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	if sender.IsBanned {
		return nil, ErrBanned
	}

	res, err := s.ledger.SendGift(ctx, repository.GiftParams{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		StreamID:   in.StreamID,
		GiftName:   in.GiftName,
		CoinAmount: in.CoinAmount,
		CoinType:   in.CoinType,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("gift sent",
		"sender", in.SenderID,
		"receiver", in.ReceiverID,
		"gift", in.GiftName,
		"coins", in.CoinAmount,
		"coin_type", in.CoinType,
		"bonus", res.BonusAmount,
	)
	return res, nil
}
