package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/service"
)

type grantCoinsRequest struct {
	Amount   int64  `json:"amount"`
	CoinType string `json:"coin_type"`
	Reason   string `json:"reason"`
}

func (s *Server) handleGrantCoins(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req grantCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	admin := userFrom(r)
	balance, err := s.wallet.Grant(r.Context(), service.GrantInput{
		UserID:      userID,
		Amount:      req.Amount,
		CoinType:    models.CoinType(req.CoinType),
		Reason:      req.Reason,
		AdminUserID: admin.ID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
	})
}

func (s *Server) handleFlagUser(w http.ResponseWriter, r *http.Request) {
	s.setUserFlag(w, r, s.users.SetFlagged, true)
}

func (s *Server) handleUnflagUser(w http.ResponseWriter, r *http.Request) {
	s.setUserFlag(w, r, s.users.SetFlagged, false)
}

func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	s.setUserFlag(w, r, s.users.SetBanned, true)
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	s.setUserFlag(w, r, s.users.SetBanned, false)
}

func (s *Server) setUserFlag(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, userID int64, value bool) error, value bool) {
	userID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := set(r.Context(), userID, value); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.cashouts.ListTiers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, map[string]any{
			"coin_amount":            t.CoinAmount,
			"usd_value":              t.USDValue.StringFixed(2),
			"processing_fee_percent": t.ProcessingFeePercent.StringFixed(2),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type tierRequest struct {
	CoinAmount           int64  `json:"coin_amount"`
	USDValue             string `json:"usd_value"`
	ProcessingFeePercent string `json:"processing_fee_percent"`
}

func (s *Server) handleUpsertTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	usd, err := decimal.NewFromString(req.USDValue)
	if err != nil {
		http.Error(w, "invalid usd_value", http.StatusBadRequest)
		return
	}
	pct, err := decimal.NewFromString(req.ProcessingFeePercent)
	if err != nil {
		http.Error(w, "invalid processing_fee_percent", http.StatusBadRequest)
		return
	}

	tier := &models.CashoutTier{
		CoinAmount:           req.CoinAmount,
		USDValue:             usd,
		ProcessingFeePercent: pct,
	}
	if err := s.cashouts.UpsertTier(r.Context(), tier); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAllPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.payments.ListAllPackages(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

type packageRequest struct {
	Name          string `json:"name"`
	Coins         int64  `json:"coins"`
	AmountCents   int64  `json:"amount_cents"`
	StripePriceID string `json:"stripe_price_id"`
	IsActive      bool   `json:"is_active"`
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pkg, err := s.payments.CreatePackage(r.Context(), &models.CoinPackage{
		Name:          req.Name,
		Coins:         req.Coins,
		AmountCents:   req.AmountCents,
		StripePriceID: req.StripePriceID,
		IsActive:      req.IsActive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pkg)
}
