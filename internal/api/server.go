package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trollcity/coin-service/internal/repository"
	"github.com/trollcity/coin-service/internal/service"
)

type Server struct {
	addr      string
	log       *slog.Logger
	users     *service.UserService
	gifts     *service.GiftService
	wallet    *service.WalletService
	cashouts  *service.CashoutService
	payments  *service.PaymentService
	telemetry *service.TelemetryService
	router    *chi.Mux
}

func NewServer(addr string, requestTimeout time.Duration, log *slog.Logger, users *service.UserService, gifts *service.GiftService, wallet *service.WalletService, cashouts *service.CashoutService, payments *service.PaymentService, telemetry *service.TelemetryService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	s := &Server{
		addr:      addr,
		log:       log,
		users:     users,
		gifts:     gifts,
		wallet:    wallet,
		cashouts:  cashouts,
		payments:  payments,
		telemetry: telemetry,
		router:    r,
	}

	r.Post("/webhooks/stripe", s.handleStripeWebhook)
	r.Post("/webhooks/square", s.handleSquareWebhook)
	r.Post("/telemetry", s.handleTelemetry)

	r.Group(func(authed chi.Router) {
		authed.Use(s.bearerAuth)
		authed.Get("/wallet", s.handleGetWallet)
		authed.Get("/wallet/transactions", s.handleListTransactions)
		authed.Post("/gifts", s.handleSendGift)
		authed.Get("/packages", s.handleListPackages)
		authed.Post("/checkout", s.handleCheckout)
		authed.Post("/cashouts", s.handleCreateCashout)
		authed.Get("/cashouts/mine", s.handleMyCashouts)

		authed.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireAdmin)
			admin.Get("/cashouts", s.handleListCashouts)
			admin.Post("/cashouts/{id}/process", s.handleProcessCashout)
			admin.Patch("/cashouts/{id}/mark-paid", s.handleMarkPaid)
			admin.Post("/cashouts/{id}/complete", s.handleCompleteCashout)
			admin.Patch("/cashouts/{id}/mark-completed", s.handleMarkCompleted)
			admin.Post("/cashouts/{id}/reject", s.handleRejectCashout)
			admin.Post("/users/{id}/grant-coins", s.handleGrantCoins)
			admin.Post("/users/{id}/flag", s.handleFlagUser)
			admin.Delete("/users/{id}/flag", s.handleUnflagUser)
			admin.Post("/users/{id}/ban", s.handleBanUser)
			admin.Delete("/users/{id}/ban", s.handleUnbanUser)
			admin.Get("/tiers", s.handleListTiers)
			admin.Put("/tiers", s.handleUpsertTier)
			admin.Get("/packages", s.handleListAllPackages)
			admin.Post("/packages", s.handleCreatePackage)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Internal details stay in
// the log; clients get the sentinel's message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrBanned):
		http.Error(w, "account is banned", http.StatusForbidden)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusConflict)
	case errors.Is(err, repository.ErrInvalidTransition):
		http.Error(w, "invalid state transition", http.StatusConflict)
	default:
		s.log.Error("handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
