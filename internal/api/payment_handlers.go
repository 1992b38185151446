package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/service"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Gateway webhooks acknowledge with 200 once the signature checks out, even
// when processing fails internally. The unique event id makes redelivery
// safe, and a retry storm against a broken database helps nobody.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	err = s.payments.HandleStripeEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	s.finishWebhook(w, "stripe", err)
}

func (s *Server) handleSquareWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	err = s.payments.HandleSquareEvent(r.Context(), body, r.Header.Get("X-Square-Hmacsha256-Signature"))
	s.finishWebhook(w, "square", err)
}

func (s *Server) finishWebhook(w http.ResponseWriter, provider string, err error) {
	if errors.Is(err, service.ErrBadSignature) {
		s.log.Warn("webhook signature rejected", "provider", provider)
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("webhook processing failed", "provider", provider, "err", err)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.payments.ListPackages(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

type checkoutRequest struct {
	PackageID int64 `json:"package_id"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	user := userFrom(r)
	res, err := s.payments.Checkout(r.Context(), user.ID, req.PackageID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":     res.OrderID,
		"checkout_url": res.CheckoutURL,
		"session_id":   res.SessionID,
	})
}

type telemetryRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// handleTelemetry always answers 204. Malformed beacons and storage failures
// are logged and dropped.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err == nil {
		var userID *int64
		if header := r.Header.Get("Authorization"); header != "" {
			if user := s.optionalUser(r); user != nil {
				userID = &user.ID
			}
		}
		s.telemetry.Record(r.Context(), userID, req.EventType, string(req.Payload))
	}
	w.WriteHeader(http.StatusNoContent)
}

// optionalUser resolves a bearer token when one is present; anonymous
// beacons are fine.
func (s *Server) optionalUser(r *http.Request) *models.User {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil
	}
	user, err := s.users.Authenticate(r.Context(), token)
	if err != nil {
		return nil
	}
	return user
}
