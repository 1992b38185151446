package service

import (
	"context"
	"log/slog"

	"github.com/trollcity/coin-service/internal/models"
)

type userStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByAPIToken(ctx context.Context, token string) (*models.User, error)
	SetFlagged(ctx context.Context, userID int64, flagged bool) error
	SetBanned(ctx context.Context, userID int64, banned bool) error
}

type UserService struct {
	users userStore
	log   *slog.Logger
}

func NewUserService(users userStore, log *slog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

// Authenticate resolves a bearer token to its account. Banned accounts still
// authenticate; write paths reject them individually.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	return s.users.FindByAPIToken(ctx, token)
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) SetFlagged(ctx context.Context, userID int64, flagged bool) error {
	if err := s.users.SetFlagged(ctx, userID, flagged); err != nil {
		return err
	}
	s.log.Info("user flag updated", "user", userID, "flagged", flagged)
	return nil
}

func (s *UserService) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	s.log.Info("user ban updated", "user", userID, "banned", banned)
	return nil
}
