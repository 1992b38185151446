package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
	"github.com/trollcity/coin-service/internal/service"
)

// stubBackend satisfies every store interface the services need, with
// just enough behavior to route requests through real handlers.
type stubBackend struct {
	usersByToken map[string]*models.User
	usersByID    map[int64]*models.User
	giftErr      error
	telemetryErr error
	telemetry    int
}

func newStubBackend() *stubBackend {
	admin := &models.User{ID: 1, Username: "root", Role: models.RoleAdmin, APIToken: "admin-token"}
	viewer := &models.User{ID: 2, Username: "viewer", Role: models.RoleUser, APIToken: "viewer-token", PaidCoins: 500, FreeCoins: 100}
	streamer := &models.User{ID: 3, Username: "streamer", Role: models.RoleUser, APIToken: "streamer-token"}
	return &stubBackend{
		usersByToken: map[string]*models.User{
			admin.APIToken:    admin,
			viewer.APIToken:   viewer,
			streamer.APIToken: streamer,
		},
		usersByID: map[int64]*models.User{1: admin, 2: viewer, 3: streamer},
	}
}

func (b *stubBackend) FindByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := b.usersByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (b *stubBackend) FindByAPIToken(ctx context.Context, token string) (*models.User, error) {
	u, ok := b.usersByToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (b *stubBackend) SetFlagged(ctx context.Context, userID int64, flagged bool) error { return nil }
func (b *stubBackend) SetBanned(ctx context.Context, userID int64, banned bool) error   { return nil }

func (b *stubBackend) SendGift(ctx context.Context, p repository.GiftParams) (*repository.GiftResult, error) {
	if b.giftErr != nil {
		return nil, b.giftErr
	}
	return &repository.GiftResult{GiftID: 11, SenderBalance: 500 - p.CoinAmount}, nil
}

func (b *stubBackend) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	u, ok := b.usersByID[userID]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	return u.PaidCoins, u.FreeCoins, nil
}

func (b *stubBackend) ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]models.CoinTransaction, error) {
	return nil, nil
}

func (b *stubBackend) Adjust(ctx context.Context, p repository.AdjustParams) (int64, error) {
	return p.Amount, nil
}

func (b *stubBackend) InvalidateBalance(ctx context.Context, userID int64) {}

func (b *stubBackend) Create(ctx context.Context, req *models.CashoutRequest) (*models.CashoutRequest, error) {
	out := *req
	out.ID = 1
	return &out, nil
}

func (b *stubBackend) GetByID(ctx context.Context, id int64) (*models.CashoutRequest, error) {
	return nil, repository.ErrNotFound
}

func (b *stubBackend) List(ctx context.Context, f repository.CashoutFilter) ([]models.CashoutRequest, error) {
	return []models.CashoutRequest{}, nil
}

func (b *stubBackend) MarkProcessing(ctx context.Context, id int64, feePct, fee, net decimal.Decimal) error {
	return repository.ErrNotFound
}

func (b *stubBackend) FinalizePaid(ctx context.Context, id int64, fromStatuses []models.CashoutStatus, fee, net decimal.Decimal, ref, notes string, ledger *models.CoinTransaction) error {
	return repository.ErrNotFound
}

func (b *stubBackend) Reject(ctx context.Context, id int64, notes string) error {
	return repository.ErrNotFound
}

func (b *stubBackend) AppendPaidNote(ctx context.Context, id int64, note string) error {
	return repository.ErrNotFound
}

func (b *stubBackend) Insert(ctx context.Context, userID *int64, eventType, payload string) error {
	b.telemetry++
	return b.telemetryErr
}

// stubTiers is separate because its List signature differs from the
// cashout store's.
type stubTiers struct{}

func (stubTiers) GetByCoinAmount(ctx context.Context, coins int64) (*models.CashoutTier, error) {
	return nil, repository.ErrNotFound
}

func (stubTiers) List(ctx context.Context) ([]models.CashoutTier, error) { return nil, nil }

func (stubTiers) Upsert(ctx context.Context, t *models.CashoutTier) error { return nil }

func (stubTiers) Count(ctx context.Context) (int, error) { return 0, nil }

func newTestServer(t *testing.T, backend *stubBackend) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := service.NewUserService(backend, log)
	gifts := service.NewGiftService(backend, backend, log)
	wallet := service.NewWalletService(backend, backend, log)
	cashouts := service.NewCashoutService(backend, stubTiers{}, backend, backend, 0.01, log)
	payments := service.NewPaymentService(nil, nil, nil, nil, service.PaymentConfig{
		StripeWebhookSecret:       "whsec_test",
		SquareWebhookSignatureKey: "sig-key",
		SquareNotificationURL:     "https://example.test/webhooks/square",
	}, log)
	telemetry := service.NewTelemetryService(backend, log)

	return NewServer(":0", 15*time.Second, log, users, gifts, wallet, cashouts, payments, telemetry)
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, newStubBackend())

	rec := doRequest(s, http.MethodGet, "/wallet", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/wallet", "no-such-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRequiresRole(t *testing.T) {
	s := newTestServer(t, newStubBackend())

	rec := doRequest(s, http.MethodGet, "/admin/cashouts", "viewer-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s, http.MethodGet, "/admin/cashouts", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetWallet(t *testing.T) {
	s := newTestServer(t, newStubBackend())

	rec := doRequest(s, http.MethodGet, "/wallet", "viewer-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paid_coins":500`)
	assert.Contains(t, rec.Body.String(), `"free_coins":100`)
}

func TestSendGift(t *testing.T) {
	backend := newStubBackend()
	s := newTestServer(t, backend)

	body := `{"receiver_id":3,"stream_id":"s1","gift_name":"rose","coin_amount":50,"coin_type":"paid"}`
	rec := doRequest(s, http.MethodPost, "/gifts", "viewer-token", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gift_id":11`)

	backend.giftErr = repository.ErrInsufficientFunds
	rec = doRequest(s, http.MethodPost, "/gifts", "viewer-token", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(s, http.MethodPost, "/gifts", "viewer-token", `{"receiver_id":2,"gift_name":"rose","coin_amount":50,"coin_type":"paid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelemetryAlwaysNoContent(t *testing.T) {
	backend := newStubBackend()
	s := newTestServer(t, backend)

	rec := doRequest(s, http.MethodPost, "/telemetry", "", `{"event_type":"page_view","payload":{"page":"/live"}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, backend.telemetry)

	// Storage failures are swallowed.
	backend.telemetryErr = errors.New("db down")
	rec = doRequest(s, http.MethodPost, "/telemetry", "", `{"event_type":"page_view"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// So is garbage input.
	rec = doRequest(s, http.MethodPost, "/telemetry", "", `{not json`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, newStubBackend())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, newStubBackend())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(`{"event_id":"evt-1"}`))
	req.Header.Set("X-Square-Hmacsha256-Signature", "bogus")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
