package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
	"github.com/trollcity/coin-service/internal/service"
)

func cashoutResponse(c *models.CashoutRequest) map[string]any {
	out := map[string]any{
		"id":              c.ID,
		"user_id":         c.UserID,
		"requested_coins": c.RequestedCoins,
		"usd_value":       c.USDValue.StringFixed(2),
		"status":          c.Status,
		"fee_percentage":  c.FeePercentage.StringFixed(2),
		"fee_applied":     c.FeeApplied.StringFixed(2),
		"usd_after_fee":   c.USDAfterFee.StringFixed(2),
		"payout_method":   c.PayoutMethod,
		"transaction_ref": c.TransactionRef,
		"created_at":      c.CreatedAt,
	}
	if c.ProcessedAt != nil {
		out["processed_at"] = c.ProcessedAt
	}
	if c.PaidAt != nil {
		out["paid_at"] = c.PaidAt
	}
	return out
}

func cashoutListResponse(list []models.CashoutRequest) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		out = append(out, cashoutResponse(&list[i]))
	}
	return out
}

type createCashoutRequest struct {
	RequestedCoins int64  `json:"requested_coins"`
	PayoutMethod   string `json:"payout_method"`
	PayoutDetails  string `json:"payout_details"`
}

func (s *Server) handleCreateCashout(w http.ResponseWriter, r *http.Request) {
	var req createCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	user := userFrom(r)
	cashout, err := s.cashouts.Create(r.Context(), service.CreateCashoutInput{
		UserID:         user.ID,
		RequestedCoins: req.RequestedCoins,
		PayoutMethod:   req.PayoutMethod,
		PayoutDetails:  req.PayoutDetails,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cashoutResponse(cashout))
}

func (s *Server) handleMyCashouts(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	list, err := s.cashouts.ListForUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutListResponse(list))
}

func (s *Server) handleListCashouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := s.cashouts.List(r.Context(), repository.CashoutFilter{
		Status:   models.CashoutStatus(q.Get("status")),
		Provider: q.Get("provider"),
		Query:    q.Get("q"),
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutListResponse(list))
}

func (s *Server) handleProcessCashout(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	cashout, err := s.cashouts.Process(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutResponse(cashout))
}

type settleCashoutRequest struct {
	TransactionRef string `json:"transaction_ref"`
	Notes          string `json:"notes"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	s.settleCashout(w, r, s.cashouts.MarkPaid)
}

func (s *Server) handleCompleteCashout(w http.ResponseWriter, r *http.Request) {
	s.settleCashout(w, r, s.cashouts.Complete)
}

func (s *Server) settleCashout(w http.ResponseWriter, r *http.Request, settle func(ctx context.Context, id int64, ref, notes string) (*models.CashoutRequest, error)) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req settleCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cashout, err := settle(r.Context(), id, req.TransactionRef, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutResponse(cashout))
}

func (s *Server) handleMarkCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cashout, err := s.cashouts.MarkCompleted(r.Context(), id, req.PaymentRef)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutResponse(cashout))
}

func (s *Server) handleRejectCashout(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cashout, err := s.cashouts.Reject(r.Context(), id, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cashoutResponse(cashout))
}
