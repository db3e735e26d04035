package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// CallStatus moves ringing -> active -> ended; ended is terminal
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

type CallParticipantStatus string

const (
	CallParticipantConnecting CallParticipantStatus = "connecting"
	CallParticipantConnected  CallParticipantStatus = "connected"
)

// CallSession is the bookkeeping record of an audio/video call overlaid on a conversation
type CallSession struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID  `json:"conversation_id" gorm:"type:uuid;index;not null"`
	Type           CallType   `json:"type" gorm:"type:varchar(10);not null"`
	InitiatorID    uuid.UUID  `json:"initiator_id" gorm:"type:uuid;not null"`
	Status         CallStatus `json:"status" gorm:"type:varchar(10);not null"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`

	Participants []CallParticipant `json:"participants" gorm:"foreignKey:CallID"`
}

func (c *CallSession) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// HasParticipant reports whether userID is currently in the call
func (c *CallSession) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// CallParticipant is a user currently in a call
type CallParticipant struct {
	CallID   uuid.UUID             `json:"-" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID             `json:"user_id" gorm:"type:uuid;primaryKey"`
	UserName string                `json:"user_name" gorm:"size:100"`
	Status   CallParticipantStatus `json:"status" gorm:"type:varchar(20)"`
	JoinedAt time.Time             `json:"joined_at"`
}
