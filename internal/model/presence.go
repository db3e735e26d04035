package model

import (
	"time"

	"github.com/google/uuid"
)

// PresenceState is a user's transient activity inside one conversation
type PresenceState string

const (
	PresenceTyping    PresenceState = "typing"
	PresenceRecording PresenceState = "recording"
	PresenceIdle      PresenceState = "idle"
)

// PresenceEntry is keyed by (UserID, ConversationID)
type PresenceEntry struct {
	UserID         uuid.UUID     `json:"user_id"`
	UserName       string        `json:"user_name"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	State          PresenceState `json:"state"`
	LastUpdated    time.Time     `json:"last_updated"`
}
