package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageKind defines the type of message content
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindFile  MessageKind = "file"
	MessageKindAudio MessageKind = "audio"
	MessageKindVoice MessageKind = "voice"
)

// CarriesFile reports whether messages of this kind reference an uploaded file
func (k MessageKind) CarriesFile() bool {
	return k != MessageKindText
}

// Message represents a chat message. Sender name and avatar are a snapshot taken at send time.
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"type:uuid;index:idx_conv_created;not null"`
	SenderID       uuid.UUID   `json:"sender_id" gorm:"type:uuid;index;not null"`
	SenderName     string      `json:"sender_name" gorm:"size:100"`
	SenderAvatar   string      `json:"sender_avatar,omitempty" gorm:"size:500"`
	Content        string      `json:"content" gorm:"type:text"`
	Kind           MessageKind `json:"kind" gorm:"type:varchar(20);default:'text'"`
	FileURL        string      `json:"file_url,omitempty" gorm:"size:1000"`
	FileName       string      `json:"file_name,omitempty" gorm:"size:255"`
	// ReplyToID is not checked for existence; dangling replies are allowed
	ReplyToID *uuid.UUID `json:"reply_to,omitempty" gorm:"type:uuid"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_conv_created"`

	ReadBy []uuid.UUID `json:"read_by" gorm:"-"`

	// Relations
	ReadReceipts []ReadReceipt `json:"-" gorm:"foreignKey:MessageID"`
}

// BeforeCreate assigns a time-ordered id. Messages sharing a created_at
// still sort in insertion order on (created_at, id).
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID != uuid.Nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// AfterFind flattens preloaded receipts into ReadBy
func (m *Message) AfterFind(tx *gorm.DB) error {
	if len(m.ReadReceipts) == 0 {
		return nil
	}
	m.ReadBy = make([]uuid.UUID, 0, len(m.ReadReceipts))
	for _, r := range m.ReadReceipts {
		m.ReadBy = append(m.ReadBy, r.UserID)
	}
	return nil
}

// IsReadBy reports whether userID has acknowledged the message
func (m *Message) IsReadBy(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ReadReceipt tracks when a user read a message. The sender gets one at send time.
type ReadReceipt struct {
	MessageID uuid.UUID `json:"message_id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	ReadAt    time.Time `json:"read_at" gorm:"not null"`
}
