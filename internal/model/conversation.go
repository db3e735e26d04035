package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationType defines whether the conversation is direct or group
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// Conversation represents a chat conversation (1-1 or group)
type Conversation struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Type        ConversationType `json:"type" gorm:"type:varchar(20);not null"`
	Name        string           `json:"name,omitempty" gorm:"size:100"`
	Description string           `json:"description,omitempty" gorm:"size:500"`
	// DirectKey is the sorted "a:b" user pair of a direct conversation; NULL for groups.
	// The unique index makes find-or-create safe against concurrent creates.
	DirectKey  *string   `json:"-" gorm:"size:80;uniqueIndex"`
	CreatedBy  uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	IsArchived bool      `json:"is_archived" gorm:"default:false;index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime:false;index"`

	// Relations
	Participants []ConversationMember `json:"participants" gorm:"foreignKey:ConversationID"`
	LastMessage  *Message             `json:"last_message,omitempty" gorm:"-"` // populated manually
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Participant returns the membership of userID, or nil
func (c *Conversation) Participant(userID uuid.UUID) *ConversationMember {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// IsAdmin reports whether userID administers this conversation
func (c *Conversation) IsAdmin(userID uuid.UUID) bool {
	p := c.Participant(userID)
	return p != nil && p.IsAdmin
}

// ParticipantIDs returns participant user ids in join order
func (c *Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// DirectKeyFor returns the order-independent key of a user pair
func DirectKeyFor(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// ConversationMember is a participant of a conversation.
// Display name, avatar and role are snapshots taken when the user joined.
type ConversationMember struct {
	ID             uuid.UUID  `json:"-" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID  `json:"-" gorm:"type:uuid;uniqueIndex:idx_conv_user;not null"`
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_conv_user;index;not null"`
	DisplayName    string     `json:"display_name" gorm:"size:100"`
	AvatarURL      string     `json:"avatar_url" gorm:"size:500"`
	Role           UserRole   `json:"role" gorm:"type:varchar(20)"`
	IsAdmin        bool       `json:"is_admin" gorm:"default:false"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

func (m *ConversationMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return nil
}

// MemberFromUser snapshots a directory user as a participant
func MemberFromUser(u *User, isAdmin bool, joinedAt time.Time) ConversationMember {
	return ConversationMember{
		UserID:      u.ID,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		IsAdmin:     isAdmin,
		JoinedAt:    joinedAt,
	}
}
