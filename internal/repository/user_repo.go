package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository is the user directory: id -> name, avatar, role
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID finds a user by UUID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs returns the users that resolve; missing ids are simply absent
func (r *UserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	users := []model.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// FindByEmail finds a user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers searches users by name or email (case-insensitive partial match)
func (r *UserRepository) SearchUsers(ctx context.Context, query string, excludeUserID uuid.UUID, limit int) ([]model.User, error) {
	users := []model.User{}
	like := "%" + strings.ToLower(query) + "%"
	err := r.db.WithContext(ctx).
		Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ?) AND id <> ?", like, like, excludeUserID).
		Order("name ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// UpdateOnlineStatus sets a user's online status and last seen time
func (r *UserRepository) UpdateOnlineStatus(ctx context.Context, id uuid.UUID, isOnline bool) error {
	updates := map[string]interface{}{
		"is_online": isOnline,
	}
	if !isOnline {
		updates["last_seen"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error
}

// AddDevice adds or refreshes a push token
func (r *UserRepository) AddDevice(ctx context.Context, userID uuid.UUID, token string, deviceType string) error {
	now := time.Now().UTC()
	device := model.UserDevice{
		UserID:       userID,
		FCMToken:     token,
		DeviceType:   deviceType,
		LastActiveAt: now,
		CreatedAt:    now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "fcm_token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active_at": now,
			"device_type":    deviceType,
		}),
	}).Create(&device).Error
}

// GetUserDevices gets all devices for a user
func (r *UserRepository) GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error) {
	var devices []model.UserDevice
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error
	return devices, err
}
