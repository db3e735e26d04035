package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole is the learning hub role a directory user holds
type UserRole string

const (
	UserRoleTeacher UserRole = "teacher"
	UserRoleStudent UserRole = "student"
)

// User is a user directory entry. Accounts and credentials live with the sign-in service;
// this table only carries what the chat needs to denormalize names and avatars.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	AvatarURL string    `json:"avatar_url" gorm:"size:500;default:''"`
	Role      UserRole  `json:"role" gorm:"type:varchar(20);default:'student'"`

	IsNotificationEnabled bool `json:"is_notification_enabled" gorm:"default:true"`

	IsOnline  bool           `json:"is_online" gorm:"default:false"`
	LastSeen  *time.Time     `json:"last_seen"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserResponse is the public view of a directory user
type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	AvatarURL string     `json:"avatar_url"`
	Role      UserRole   `json:"role"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
		IsOnline:  u.IsOnline,
		LastSeen:  u.LastSeen,
	}
}
