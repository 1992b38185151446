package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CoinType string

const (
	CoinTypePaid CoinType = "paid"
	CoinTypeFree CoinType = "free"
)

// TransactionCategory classifies a ledger entry. Every balance mutation
// appends exactly one coin transaction with one of these categories.
type TransactionCategory string

const (
	CategoryPurchase        TransactionCategory = "purchase"
	CategoryGiftSent        TransactionCategory = "gift_sent"
	CategoryGiftReceived    TransactionCategory = "gift_received"
	CategoryCashout         TransactionCategory = "cashout"
	CategoryFee             TransactionCategory = "fee"
	CategoryAdminAdjustment TransactionCategory = "admin_adjustment"
	CategoryReward          TransactionCategory = "reward"
	CategoryRefund          TransactionCategory = "refund"
)

type CashoutStatus string

const (
	CashoutPending    CashoutStatus = "pending"
	CashoutProcessing CashoutStatus = "processing"
	CashoutPaid       CashoutStatus = "paid"
	CashoutRejected   CashoutStatus = "rejected"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPaid      OrderStatus = "paid"
	OrderFulfilled OrderStatus = "fulfilled"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID               int64
	Username         string
	Email            string
	Role             Role
	PaidCoins        int64
	FreeCoins        int64
	TotalEarnedCoins int64
	TotalSpentCoins  int64
	IsPartner        bool
	IsFlagged        bool
	IsBanned         bool
	APIToken         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balance returns the spendable counter for the given coin type.
func (u *User) Balance(coinType CoinType) int64 {
	if coinType == CoinTypePaid {
		return u.PaidCoins
	}
	return u.FreeCoins
}

type CoinTransaction struct {
	ID           int64
	UserID       int64
	Amount       int64 // signed: negative for debits
	CoinType     CoinType
	Category     TransactionCategory
	Description  string
	Metadata     string // JSON bag, opaque to the ledger
	BalanceAfter int64
	CreatedAt    time.Time
}

type Gift struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	StreamID    string
	Name        string
	CoinAmount  int64
	CoinType    CoinType
	BonusAmount int64
	CreatedAt   time.Time
}

type ChatMessage struct {
	ID          int64
	StreamID    string
	UserID      int64
	ReceiverID  int64
	Content     string
	MessageType string
	GiftAmount  int64
	CreatedAt   time.Time
}

type CashoutRequest struct {
	ID             int64
	UserID         int64
	RequestedCoins int64
	USDValue       decimal.Decimal
	Status         CashoutStatus
	FeePercentage  decimal.Decimal
	FeeApplied     decimal.Decimal
	USDAfterFee    decimal.Decimal
	PayoutMethod   string
	PayoutDetails  string
	TransactionRef string
	AdminNotes     string
	ProcessedAt    *time.Time
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CashoutTier struct {
	ID                   int64
	CoinAmount           int64
	USDValue             decimal.Decimal
	ProcessingFeePercent decimal.Decimal
	CreatedAt            time.Time
}

type CoinPackage struct {
	ID            int64
	Name          string
	Coins         int64
	AmountCents   int64
	StripePriceID string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CoinOrder struct {
	ID                string // uuid
	UserID            int64
	PackageID         *int64
	Coins             int64
	AmountCents       int64
	Provider          string
	Status            OrderStatus
	CheckoutSessionID string
	PaymentIntentID   string
	SquarePaymentID   string
	PaidAt            *time.Time
	FulfilledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PaymentEvent struct {
	ID        int64
	Provider  string
	EventID   string
	EventType string
	Payload   string
	CreatedAt time.Time
}

type TelemetryEvent struct {
	ID        int64
	UserID    *int64
	EventType string
	Payload   string
	CreatedAt time.Time
}
