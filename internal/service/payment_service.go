package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
)

// ErrBadSignature rejects webhook deliveries that fail verification.
var ErrBadSignature = errors.New("webhook signature verification failed")

type orderStore interface {
	Create(ctx context.Context, o *models.CoinOrder) error
	GetByID(ctx context.Context, id string) (*models.CoinOrder, error)
	FindByCheckoutSession(ctx context.Context, sessionID string) (*models.CoinOrder, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.CoinOrder, error)
	FindBySquarePayment(ctx context.Context, paymentID string) (*models.CoinOrder, error)
	AttachPaymentIntent(ctx context.Context, orderID, intentID string) error
	CreditPaidOrder(ctx context.Context, p repository.CreditParams) error
	RecordEvent(ctx context.Context, provider, eventID, eventType, payload string) error
}

type packageStore interface {
	GetByID(ctx context.Context, id int64) (*models.CoinPackage, error)
	List(ctx context.Context, activeOnly bool) ([]models.CoinPackage, error)
	Create(ctx context.Context, p *models.CoinPackage) (*models.CoinPackage, error)
}

type checkoutSessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// PayloadArchiver mirrors raw webhook payloads to object storage. Optional;
// a nil archiver disables mirroring.
type PayloadArchiver interface {
	ArchiveEvent(ctx context.Context, provider, eventID string, payload []byte) error
}

type PaymentConfig struct {
	StripeWebhookSecret       string
	SquareWebhookSignatureKey string
	SquareNotificationURL     string
	AppBaseURL                string
}

// PaymentService owns the purchase side of the ledger: checkout session
// creation and gateway webhook handling. Coins are always credited from the
// order row, never from amounts carried in gateway payloads.
type PaymentService struct {
	orders   orderStore
	packages packageStore
	sessions checkoutSessionCreator
	archiver PayloadArchiver // optional
	cfg      PaymentConfig
	log      *slog.Logger
}

func NewPaymentService(orders orderStore, packages packageStore, sessions checkoutSessionCreator, archiver PayloadArchiver, cfg PaymentConfig, log *slog.Logger) *PaymentService {
	return &PaymentService{
		orders:   orders,
		packages: packages,
		sessions: sessions,
		archiver: archiver,
		cfg:      cfg,
		log:      log,
	}
}

func (s *PaymentService) ListPackages(ctx context.Context) ([]models.CoinPackage, error) {
	return s.packages.List(ctx, true)
}

func (s *PaymentService) ListAllPackages(ctx context.Context) ([]models.CoinPackage, error) {
	return s.packages.List(ctx, false)
}

func (s *PaymentService) CreatePackage(ctx context.Context, p *models.CoinPackage) (*models.CoinPackage, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: package name is required", ErrValidation)
	}
	if p.Coins <= 0 || p.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: coins and price must be positive", ErrValidation)
	}
	return s.packages.Create(ctx, p)
}

type CheckoutResult struct {
	OrderID     string
	CheckoutURL string
	SessionID   string
}

// Checkout creates a Stripe checkout session for a coin package and records
// the order row the later webhook will credit from.
func (s *PaymentService) Checkout(ctx context.Context, userID, packageID int64) (*CheckoutResult, error) {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, fmt.Errorf("%w: package %d is not available", ErrValidation, packageID)
	}

	orderID := uuid.NewString()
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.AppBaseURL + "/purchase/success?order=" + orderID),
		CancelURL:  stripe.String(s.cfg.AppBaseURL + "/purchase/cancel"),
	}
	params.AddMetadata("order_id", orderID)
	params.AddMetadata("user_id", fmt.Sprintf("%d", userID))
	if pkg.StripePriceID != "" {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(pkg.StripePriceID),
			Quantity: stripe.Int64(1),
		}}
	} else {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(pkg.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(pkg.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}}
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	order := &models.CoinOrder{
		ID:                orderID,
		UserID:            userID,
		PackageID:         &pkg.ID,
		Coins:             pkg.Coins,
		AmountCents:       pkg.AmountCents,
		Provider:          "stripe",
		Status:            models.OrderCreated,
		CheckoutSessionID: sess.ID,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.log.Error("order insert failed after session creation", "order", orderID, "session", sess.ID, "err", err)
		return nil, err
	}

	s.log.Info("checkout session created", "order", orderID, "user", userID, "package", packageID, "session", sess.ID)
	return &CheckoutResult{OrderID: orderID, CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

// HandleStripeEvent verifies the delivery signature and credits the matching
// order. Redeliveries are dropped by the unique event id inside the crediting
// transaction.
func (s *PaymentService) HandleStripeEvent(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.cfg.StripeWebhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	s.archive("stripe", event.ID, payload)

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		order, err := s.orders.FindByCheckoutSession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("resolve order for session %s: %w", sess.ID, err)
		}
		if want := sess.Metadata["order_id"]; want != "" && want != order.ID {
			return fmt.Errorf("session %s metadata names order %s, row is %s", sess.ID, want, order.ID)
		}
		if sess.PaymentIntent != nil {
			if err := s.orders.AttachPaymentIntent(ctx, order.ID, sess.PaymentIntent.ID); err != nil {
				s.log.Warn("attach payment intent failed", "order", order.ID, "err", err)
			}
		}
		return s.credit(ctx, "stripe", string(event.Type), event.ID, order.ID, payload)

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		order, err := s.orders.FindByPaymentIntent(ctx, intent.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Intent not yet attached to an order; the session-completed
				// delivery carries the link and does the crediting.
				return s.recordOnly(ctx, "stripe", event.ID, string(event.Type), payload)
			}
			return err
		}
		return s.credit(ctx, "stripe", string(event.Type), event.ID, order.ID, payload)

	default:
		return s.recordOnly(ctx, "stripe", event.ID, string(event.Type), payload)
	}
}

type squareEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID          string `json:"id"`
				Status      string `json:"status"`
				ReferenceID string `json:"reference_id"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// HandleSquareEvent verifies the HMAC signature and credits the order named
// by the payment's reference id once the payment reports COMPLETED.
func (s *PaymentService) HandleSquareEvent(ctx context.Context, body []byte, signature string) error {
	if !verifySquareSignature(s.cfg.SquareWebhookSignatureKey, s.cfg.SquareNotificationURL, body, signature) {
		return ErrBadSignature
	}

	var event squareEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode square event: %w", err)
	}
	if event.EventID == "" {
		return fmt.Errorf("square event is missing event_id")
	}
	s.archive("square", event.EventID, body)

	payment := event.Data.Object.Payment
	if (event.Type != "payment.created" && event.Type != "payment.updated") || payment.Status != "COMPLETED" {
		return s.recordOnly(ctx, "square", event.EventID, event.Type, body)
	}

	order, err := s.resolveSquareOrder(ctx, payment.ReferenceID, payment.ID)
	if err != nil {
		return err
	}
	return s.credit(ctx, "square", event.Type, event.EventID, order.ID, body)
}

func (s *PaymentService) resolveSquareOrder(ctx context.Context, referenceID, paymentID string) (*models.CoinOrder, error) {
	if referenceID != "" {
		if order, err := s.orders.GetByID(ctx, referenceID); err == nil {
			return order, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	order, err := s.orders.FindBySquarePayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("resolve order for square payment %s: %w", paymentID, err)
	}
	return order, nil
}

func (s *PaymentService) credit(ctx context.Context, provider, eventType, eventID, orderID string, payload []byte) error {
	err := s.orders.CreditPaidOrder(ctx, repository.CreditParams{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Payload:   string(payload),
		OrderID:   orderID,
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		s.log.Info("duplicate webhook delivery dropped", "provider", provider, "event", eventID)
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("order credited", "provider", provider, "event", eventID, "order", orderID)
	return nil
}

func (s *PaymentService) recordOnly(ctx context.Context, provider, eventID, eventType string, payload []byte) error {
	err := s.orders.RecordEvent(ctx, provider, eventID, eventType, string(payload))
	if errors.Is(err, repository.ErrDuplicateEvent) {
		return nil
	}
	return err
}

// archive mirrors the raw payload to object storage off the request path.
func (s *PaymentService) archive(provider, eventID string, payload []byte) {
	if s.archiver == nil {
		return
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archiver.ArchiveEvent(ctx, provider, eventID, body); err != nil {
			s.log.Warn("payload archive failed", "provider", provider, "event", eventID, "err", err)
		}
	}()
}

// verifySquareSignature checks the x-square-hmacsha256-signature header:
// base64(HMAC-SHA256(key, notificationURL + rawBody)).
func verifySquareSignature(key, notificationURL string, body []byte, signature string) bool {
	if key == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
