package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
)

type fakeCashoutStore struct {
	nextID  int64
	reqs    map[int64]*models.CashoutRequest
	ledgers []*models.CoinTransaction
}

func newFakeCashoutStore() *fakeCashoutStore {
	return &fakeCashoutStore{nextID: 1, reqs: map[int64]*models.CashoutRequest{}}
}

func (f *fakeCashoutStore) Create(ctx context.Context, req *models.CashoutRequest) (*models.CashoutRequest, error) {
	stored := *req
	stored.ID = f.nextID
	f.nextID++
	f.reqs[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeCashoutStore) GetByID(ctx context.Context, id int64) (*models.CashoutRequest, error) {
	req, ok := f.reqs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *req
	return &out, nil
}

func (f *fakeCashoutStore) List(ctx context.Context, filter repository.CashoutFilter) ([]models.CashoutRequest, error) {
	var out []models.CashoutRequest
	for _, req := range f.reqs {
		if filter.UserID != 0 && req.UserID != filter.UserID {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (f *fakeCashoutStore) MarkProcessing(ctx context.Context, id int64, feePct, fee, net decimal.Decimal) error {
	req, ok := f.reqs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != models.CashoutPending {
		return repository.ErrInvalidTransition
	}
	req.Status = models.CashoutProcessing
	req.FeePercentage = feePct
	req.FeeApplied = fee
	req.USDAfterFee = net
	return nil
}

func (f *fakeCashoutStore) FinalizePaid(ctx context.Context, id int64, fromStatuses []models.CashoutStatus, fee, net decimal.Decimal, ref, notes string, ledger *models.CoinTransaction) error {
	req, ok := f.reqs[id]
	if !ok {
		return repository.ErrNotFound
	}
	allowed := false
	for _, st := range fromStatuses {
		if req.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return repository.ErrInvalidTransition
	}
	req.Status = models.CashoutPaid
	req.FeeApplied = fee
	req.USDAfterFee = net
	req.TransactionRef = ref
	req.AdminNotes += notes
	f.ledgers = append(f.ledgers, ledger)
	return nil
}

func (f *fakeCashoutStore) Reject(ctx context.Context, id int64, notes string) error {
	req, ok := f.reqs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != models.CashoutPending {
		return repository.ErrInvalidTransition
	}
	req.Status = models.CashoutRejected
	req.AdminNotes += notes
	return nil
}

func (f *fakeCashoutStore) AppendPaidNote(ctx context.Context, id int64, note string) error {
	req, ok := f.reqs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != models.CashoutPaid {
		return repository.ErrInvalidTransition
	}
	req.AdminNotes += note
	return nil
}

type fakeTierStore struct {
	tiers map[int64]*models.CashoutTier
}

func (f *fakeTierStore) GetByCoinAmount(ctx context.Context, coins int64) (*models.CashoutTier, error) {
	t, ok := f.tiers[coins]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTierStore) List(ctx context.Context) ([]models.CashoutTier, error) {
	var out []models.CashoutTier
	for _, t := range f.tiers {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTierStore) Upsert(ctx context.Context, t *models.CashoutTier) error {
	f.tiers[t.CoinAmount] = t
	return nil
}

func (f *fakeTierStore) Count(ctx context.Context) (int, error) {
	return len(f.tiers), nil
}

type fakeInvalidator struct {
	calls []int64
}

func (f *fakeInvalidator) InvalidateBalance(ctx context.Context, userID int64) {
	f.calls = append(f.calls, userID)
}

func standardTiers() *fakeTierStore {
	return &fakeTierStore{tiers: map[int64]*models.CashoutTier{
		7000:  {CoinAmount: 7000, USDValue: decimal.NewFromFloat(21.00), ProcessingFeePercent: decimal.NewFromInt(4)},
		14000: {CoinAmount: 14000, USDValue: decimal.NewFromFloat(49.50), ProcessingFeePercent: decimal.NewFromInt(9)},
		27000: {CoinAmount: 27000, USDValue: decimal.NewFromFloat(90.00), ProcessingFeePercent: decimal.NewFromInt(18)},
		47000: {CoinAmount: 47000, USDValue: decimal.NewFromFloat(155.00), ProcessingFeePercent: decimal.NewFromInt(25)},
	}}
}

func newCashoutService(store *fakeCashoutStore, tiers *fakeTierStore, users *fakeUsers) (*CashoutService, *fakeInvalidator) {
	inv := &fakeInvalidator{}
	svc := NewCashoutService(store, tiers, users, inv, 0.01, discardLogger())
	return svc, inv
}

func TestFeePercentFallbackThresholds(t *testing.T) {
	svc, _ := newCashoutService(newFakeCashoutStore(), &fakeTierStore{tiers: map[int64]*models.CashoutTier{}}, &fakeUsers{})

	tests := []struct {
		coins int64
		want  int64
	}{
		{47000, 25},
		{60000, 25},
		{46999, 18},
		{27000, 18},
		{26999, 9},
		{14000, 9},
		{13999, 4},
		{7000, 4},
		{6999, 0},
		{0, 0},
	}
	for _, tt := range tests {
		got := svc.feePercentFor(context.Background(), tt.coins)
		assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "coins=%d got=%s want=%d", tt.coins, got, tt.want)
	}
}

func TestFeePercentPrefersTier(t *testing.T) {
	tiers := standardTiers()
	tiers.tiers[30000] = &models.CashoutTier{CoinAmount: 30000, USDValue: decimal.NewFromInt(100), ProcessingFeePercent: decimal.NewFromFloat(12.5)}
	svc, _ := newCashoutService(newFakeCashoutStore(), tiers, &fakeUsers{})

	got := svc.feePercentFor(context.Background(), 30000)
	assert.Equal(t, "12.5", got.String())
}

func TestProcessFallbackFee(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5, PaidCoins: 50000}}}
	svc, _ := newCashoutService(store, &fakeTierStore{tiers: map[int64]*models.CashoutTier{}}, users)

	// 30,000 coins at $0.01/coin = $300 gross; no tier row, so the 18%
	// threshold applies: $54.00 fee, $246.00 net.
	req, err := svc.Create(context.Background(), CreateCashoutInput{
		UserID: 5, RequestedCoins: 30000, PayoutMethod: "paypal",
	})
	require.NoError(t, err)
	assert.Equal(t, "300.00", req.USDValue.StringFixed(2))

	processed, err := svc.Process(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CashoutProcessing, processed.Status)
	assert.Equal(t, "54.00", processed.FeeApplied.StringFixed(2))
	assert.Equal(t, "246.00", processed.USDAfterFee.StringFixed(2))
}

func TestProcessFreezesTierFee(t *testing.T) {
	store := newFakeCashoutStore()
	tiers := standardTiers()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5, PaidCoins: 20000}}}
	svc, _ := newCashoutService(store, tiers, users)

	req, err := svc.Create(context.Background(), CreateCashoutInput{
		UserID: 5, RequestedCoins: 14000, PayoutMethod: "paypal",
	})
	require.NoError(t, err)
	assert.Equal(t, "49.50", req.USDValue.StringFixed(2))

	processed, err := svc.Process(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "9.00", processed.FeePercentage.StringFixed(2))
	assert.Equal(t, "4.46", processed.FeeApplied.StringFixed(2))
	assert.Equal(t, "45.04", processed.USDAfterFee.StringFixed(2))

	// A later tier edit must not move the frozen amounts.
	tiers.tiers[14000].ProcessingFeePercent = decimal.NewFromInt(50)
	again, err := svc.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.46", again.FeeApplied.StringFixed(2))
}

func TestMarkPaidAppliesFlaggedSurcharge(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5, PaidCoins: 50000, IsFlagged: true}}}
	svc, inv := newCashoutService(store, standardTiers(), users)

	store.reqs[1] = &models.CashoutRequest{
		ID:             1,
		UserID:         5,
		RequestedCoins: 20000,
		USDValue:       decimal.NewFromInt(200),
		Status:         models.CashoutProcessing,
		FeePercentage:  decimal.NewFromInt(9),
	}

	paid, err := svc.MarkPaid(context.Background(), 1, "po-123", "")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutPaid, paid.Status)
	// 9% of $200 = $18, plus the 1% flagged surcharge ($2) = $20 fee.
	assert.Equal(t, "20.00", paid.FeeApplied.StringFixed(2))
	assert.Equal(t, "180.00", paid.USDAfterFee.StringFixed(2))
	assert.Equal(t, "po-123", paid.TransactionRef)

	require.Len(t, store.ledgers, 1)
	assert.Equal(t, int64(-20000), store.ledgers[0].Amount)
	assert.Equal(t, models.CategoryCashout, store.ledgers[0].Category)
	assert.Equal(t, models.CoinTypePaid, store.ledgers[0].CoinType)
	assert.Equal(t, []int64{5}, inv.calls)
}

func TestMarkPaidRequiresProcessing(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5}}}
	svc, _ := newCashoutService(store, standardTiers(), users)

	store.reqs[1] = &models.CashoutRequest{
		ID: 1, UserID: 5, RequestedCoins: 7000,
		USDValue: decimal.NewFromInt(21), Status: models.CashoutPending,
	}

	_, err := svc.MarkPaid(context.Background(), 1, "", "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestCompleteSettlesPendingRequest(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5, PaidCoins: 10000}}}
	svc, _ := newCashoutService(store, standardTiers(), users)

	store.reqs[1] = &models.CashoutRequest{
		ID: 1, UserID: 5, RequestedCoins: 7000,
		USDValue: decimal.NewFromInt(21), Status: models.CashoutPending,
	}

	paid, err := svc.Complete(context.Background(), 1, "manual-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutPaid, paid.Status)
	// Pending requests never froze a fee; the tier rate resolves now: 4% of $21.
	assert.Equal(t, "0.84", paid.FeeApplied.StringFixed(2))
	assert.Equal(t, "20.16", paid.USDAfterFee.StringFixed(2))
}

func TestCreateValidation(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{
		1: {ID: 1, PaidCoins: 100},
		2: {ID: 2, PaidCoins: 50000, IsBanned: true},
	}}
	svc, _ := newCashoutService(store, standardTiers(), users)

	_, err := svc.Create(context.Background(), CreateCashoutInput{UserID: 1, RequestedCoins: 7000, PayoutMethod: "paypal"})
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	_, err = svc.Create(context.Background(), CreateCashoutInput{UserID: 2, RequestedCoins: 7000, PayoutMethod: "paypal"})
	assert.ErrorIs(t, err, ErrBanned)

	_, err = svc.Create(context.Background(), CreateCashoutInput{UserID: 1, RequestedCoins: 0, PayoutMethod: "paypal"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateCashoutInput{UserID: 1, RequestedCoins: 100})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectOnlyFromPending(t *testing.T) {
	store := newFakeCashoutStore()
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5}}}
	svc, _ := newCashoutService(store, standardTiers(), users)

	store.reqs[1] = &models.CashoutRequest{ID: 1, UserID: 5, Status: models.CashoutPending}
	store.reqs[2] = &models.CashoutRequest{ID: 2, UserID: 5, Status: models.CashoutPaid}

	rejected, err := svc.Reject(context.Background(), 1, "invalid payout details")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutRejected, rejected.Status)

	_, err = svc.Reject(context.Background(), 2, "nope")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = svc.Reject(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEnsureDefaultTiersSeedsOnce(t *testing.T) {
	tiers := &fakeTierStore{tiers: map[int64]*models.CashoutTier{}}
	svc, _ := newCashoutService(newFakeCashoutStore(), tiers, &fakeUsers{})

	require.NoError(t, svc.EnsureDefaultTiers(context.Background()))
	assert.Len(t, tiers.tiers, 4)
	assert.Equal(t, "21.00", tiers.tiers[7000].USDValue.StringFixed(2))

	// A second boot leaves existing rows alone.
	tiers.tiers[7000].USDValue = decimal.NewFromInt(99)
	require.NoError(t, svc.EnsureDefaultTiers(context.Background()))
	assert.Equal(t, "99.00", tiers.tiers[7000].USDValue.StringFixed(2))
}
