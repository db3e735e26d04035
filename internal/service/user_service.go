package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// UserService fronts the user directory
type UserService struct {
	userRepo *repository.UserRepository
	log      *zap.Logger
}

func NewUserService(userRepo *repository.UserRepository, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{userRepo: userRepo, log: log}
}

// GetUser returns the directory entry for id
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// SearchUsers matches name or email, excluding the caller
func (s *UserService) SearchUsers(ctx context.Context, callerID uuid.UUID, query string, limit int) ([]model.UserResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.Invalid("q", "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	users, err := s.userRepo.SearchUsers(ctx, query, callerID, limit)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	out := make([]model.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	return out, nil
}

// RegisterDevice stores a push token for the user
func (s *UserService) RegisterDevice(ctx context.Context, userID uuid.UUID, req model.RegisterDeviceRequest) error {
	token := strings.TrimSpace(req.FCMToken)
	if token == "" {
		return apperror.Invalid("fcm_token", "token is required")
	}
	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = "unknown"
	}
	if err := s.userRepo.AddDevice(ctx, userID, token, deviceType); err != nil {
		return storeErr(err, "user")
	}
	return nil
}

// SetOnline is the gateway's first-connect/last-disconnect hook
func (s *UserService) SetOnline(userID uuid.UUID, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.userRepo.UpdateOnlineStatus(ctx, userID, online); err != nil {
		s.log.Warn("failed to update online status",
			zap.String("user_id", userID.String()),
			zap.Bool("online", online),
			zap.Error(err))
	}
}
