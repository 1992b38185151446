package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/trollcity/coin-service/internal/models"
	"github.com/trollcity/coin-service/internal/repository"
	"github.com/trollcity/coin-service/internal/service"
)

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	wallet, err := s.wallet.Get(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":            wallet.UserID,
		"paid_coins":         wallet.PaidCoins,
		"free_coins":         wallet.FreeCoins,
		"total_earned_coins": wallet.TotalEarnedCoins,
		"total_spent_coins":  wallet.TotalSpentCoins,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	transactions, err := s.wallet.Transactions(r.Context(), user.ID, repository.TransactionFilter{
		Category: models.TransactionCategory(q.Get("category")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transactionsResponse(transactions))
}

func transactionsResponse(list []models.CoinTransaction) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, t := range list {
		out = append(out, map[string]any{
			"id":            t.ID,
			"amount":        t.Amount,
			"coin_type":     t.CoinType,
			"category":      t.Category,
			"description":   t.Description,
			"balance_after": t.BalanceAfter,
			"created_at":    t.CreatedAt,
		})
	}
	return out
}

type sendGiftRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	StreamID   string `json:"stream_id"`
	GiftName   string `json:"gift_name"`
	CoinAmount int64  `json:"coin_amount"`
	CoinType   string `json:"coin_type"`
}

func (s *Server) handleSendGift(w http.ResponseWriter, r *http.Request) {
	var req sendGiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	user := userFrom(r)
	res, err := s.gifts.Send(r.Context(), service.SendGiftInput{
		SenderID:   user.ID,
		ReceiverID: req.ReceiverID,
		StreamID:   req.StreamID,
		GiftName:   req.GiftName,
		CoinAmount: req.CoinAmount,
		CoinType:   models.CoinType(req.CoinType),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"gift_id":        res.GiftID,
		"sender_balance": res.SenderBalance,
		"bonus_amount":   res.BonusAmount,
	})
}
