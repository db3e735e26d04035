package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ========== Conversation DTOs ==========

type CreateConversationRequest struct {
	Type           ConversationType `json:"type" binding:"required,oneof=direct group"`
	ParticipantIDs []uuid.UUID      `json:"participant_ids" binding:"required,min=1"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
}

type ConversationResponse struct {
	Conversation
	// UnreadCount is 1 when the latest message is newer than the caller's last read, else 0
	UnreadCount int `json:"unread_count"`
}

type AddParticipantsRequest struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"required,min=1"`
}

// ConversationListOptions leaves room for paging; the zero value lists everything
type ConversationListOptions struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ========== Message DTOs ==========

// SendMessageRequest: text needs content, every other kind needs file_url
type SendMessageRequest struct {
	Content   string      `json:"content" binding:"required_without=FileURL"`
	Kind      MessageKind `json:"kind" binding:"omitempty,oneof=text image file audio voice"`
	FileURL   string      `json:"file_url,omitempty" binding:"required_if=Kind image,required_if=Kind file,required_if=Kind audio,required_if=Kind voice"`
	FileName  string      `json:"file_name,omitempty"`
	ReplyToID *uuid.UUID  `json:"reply_to,omitempty"`
}

// ListOptions pages through messages; the zero value returns the full history
type ListOptions struct {
	Before *uuid.UUID
	Limit  int
}

type MessageListQuery struct {
	Before string `form:"before"` // cursor: message ID
	Limit  int    `form:"limit"`
}

type UploadResponse struct {
	URL      string      `json:"url"`
	FileName string      `json:"file_name"`
	FileSize int64       `json:"file_size"`
	MimeType string      `json:"mime_type"`
	Kind     MessageKind `json:"kind"`
}

// ========== Presence / Call DTOs ==========

type SetPresenceRequest struct {
	Status PresenceState `json:"status" binding:"required,oneof=typing recording idle"`
}

type InitiateCallRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
	Type           CallType  `json:"type" binding:"required,oneof=audio video"`
}

type SignalRequest struct {
	TargetUserID uuid.UUID       `json:"target_user_id" binding:"required"`
	Signal       json.RawMessage `json:"signal" binding:"required"`
}

// ========== User DTOs ==========

type RegisterDeviceRequest struct {
	FCMToken   string `json:"fcm_token" binding:"required"`
	DeviceType string `json:"device_type"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundEvent is what the gateway serializes to clients
type OutboundEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Server -> client events
const (
	EventNewMessage            = "new_message"
	EventTypingStatus          = "typing_status"
	EventIncomingCall          = "incoming_call"
	EventCallParticipantJoined = "call_participant_joined"
	EventCallParticipantLeft   = "call_participant_left"
	EventCallEnded             = "call_ended"
	EventCallSignal            = "call_signal"
	EventConversationCreated   = "conversation_created"
	EventConversationRead      = "conversation_read"
	EventParticipantsAdded     = "participants_added"
	EventParticipantRemoved    = "participant_removed"
	EventJoinedConversation    = "joined_conversation"
	EventError                 = "error"
	EventPong                  = "pong"
)

// Client -> server events
const (
	ClientJoinConversation  = "join_conversation"
	ClientLeaveConversation = "leave_conversation"
	ClientTyping            = "typing"
	ClientSendMessage       = "send_message"
	ClientMarkRead          = "mark_read"
	ClientCallSignal        = "call_signal"
	ClientPing              = "ping"
)

type TypingStatusEvent struct {
	ConversationID uuid.UUID     `json:"conversation_id"`
	UserID         uuid.UUID     `json:"user_id"`
	UserName       string        `json:"user_name"`
	IsTyping       bool          `json:"is_typing"`
	Status         PresenceState `json:"status"`
}

type CallParticipantJoinedEvent struct {
	CallID   uuid.UUID `json:"call_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
}

type CallParticipantLeftEvent struct {
	CallID uuid.UUID `json:"call_id"`
	UserID uuid.UUID `json:"user_id"`
}

type CallEndedEvent struct {
	CallID uuid.UUID `json:"call_id"`
}

// CallSignalEvent carries an opaque WebRTC payload (offer, answer, ICE candidate)
type CallSignalEvent struct {
	CallID     uuid.UUID       `json:"call_id"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	Signal     json.RawMessage `json:"signal"`
}

type ConversationReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

type ParticipantsAddedEvent struct {
	ConversationID uuid.UUID            `json:"conversation_id"`
	Participants   []ConversationMember `json:"participants"`
}

type ParticipantRemovedEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

// ErrorEvent is sent to the single connection whose request failed
type ErrorEvent struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	RequestEvent string `json:"request_event,omitempty"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
