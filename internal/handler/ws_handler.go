package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/hubtalk/internal/middleware"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/service"
	"github.com/quocanhngo/hubtalk/internal/ws"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by CORS on the REST surface
	},
}

const defaultEventTimeout = 30 * time.Second

// WSHandler handles WebSocket connections
type WSHandler struct {
	gateway         *ws.Gateway
	verifier        *middleware.TokenVerifier
	chatService     *service.ChatService
	presenceService *service.PresenceService
	callService     *service.CallService
	log             *zap.Logger
	eventTimeout    time.Duration
}

type WSHandlerDeps struct {
	Gateway         *ws.Gateway
	Verifier        *middleware.TokenVerifier
	ChatService     *service.ChatService
	PresenceService *service.PresenceService
	CallService     *service.CallService
	Logger          *zap.Logger
	EventTimeout    time.Duration
}

func NewWSHandler(deps WSHandlerDeps) *WSHandler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := deps.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	return &WSHandler{
		gateway:         deps.Gateway,
		verifier:        deps.Verifier,
		chatService:     deps.ChatService,
		presenceService: deps.PresenceService,
		callService:     deps.CallService,
		log:             log,
		eventTimeout:    timeout,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Browsers cannot set an Authorization header on the upgrade request
	claims, err := h.verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.gateway, conn, claims.UserID, claims.Name)
	h.gateway.Register(client)

	h.log.Debug("websocket connected", zap.String("user_id", claims.UserID.String()), zap.String("name", claims.Name))

	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// handleWSMessage dispatches one inbound event. It runs on the client's read goroutine,
// so events of a single connection are processed in arrival order.
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	h.log.Debug("websocket event", zap.String("user_id", client.UserID.String()), zap.String("type", event.Type))

	ctx, cancel := context.WithTimeout(context.Background(), h.eventTimeout)
	defer cancel()

	var err error
	switch event.Type {
	case model.ClientJoinConversation:
		err = h.handleJoin(ctx, client, event)
	case model.ClientLeaveConversation:
		err = h.handleLeave(client, event)
	case model.ClientTyping:
		err = h.handleTyping(ctx, client, event)
	case model.ClientSendMessage:
		err = h.handleSendMessage(ctx, client, event)
	case model.ClientMarkRead:
		err = h.handleMarkRead(ctx, client, event)
	case model.ClientCallSignal:
		err = h.handleCallSignal(ctx, client, event)
	case model.ClientPing:
		h.gateway.SendTo(client, model.EventPong, nil)
	default:
		err = apperror.Invalid("type", "unknown event type")
	}

	if err != nil {
		h.reportError(client, event.Type, err)
	}
}

// reportError answers the offending connection only
func (h *WSHandler) reportError(client *ws.Client, requestEvent string, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("websocket event failed",
			zap.String("user_id", client.UserID.String()),
			zap.String("event", requestEvent),
			zap.Error(err),
		)
	}

	message := body.Error
	if body.Message != "" {
		message = body.Message
	}
	h.gateway.SendTo(client, model.EventError, model.ErrorEvent{
		Code:         body.Code,
		Message:      message,
		Field:        body.Field,
		RequestEvent: requestEvent,
	})
}

type conversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
}

func decodePayload(event model.WSEvent, v interface{}) error {
	if len(event.Payload) == 0 {
		return apperror.Invalid("payload", "payload is required")
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return apperror.Invalid("payload", "malformed payload")
	}
	return nil
}

func decodeConversation(event model.WSEvent) (uuid.UUID, error) {
	var p conversationPayload
	if err := decodePayload(event, &p); err != nil {
		return uuid.Nil, err
	}
	if err := validate(&p); err != nil {
		return uuid.Nil, err
	}
	return p.ConversationID, nil
}

// handleJoin subscribes the connection to a conversation room after a participant check
func (h *WSHandler) handleJoin(ctx context.Context, client *ws.Client, event model.WSEvent) error {
	convID, err := decodeConversation(event)
	if err != nil {
		return err
	}
	if err := h.chatService.IsParticipant(ctx, convID, client.UserID); err != nil {
		return err
	}

	h.gateway.Join(client, ws.ConversationRoom(convID))
	h.gateway.SendTo(client, model.EventJoinedConversation, conversationPayload{ConversationID: convID})
	return nil
}

func (h *WSHandler) handleLeave(client *ws.Client, event model.WSEvent) error {
	convID, err := decodeConversation(event)
	if err != nil {
		return err
	}
	h.gateway.Leave(client, ws.ConversationRoom(convID))
	return nil
}

// handleTyping accepts {status} or the older {is_typing} form
func (h *WSHandler) handleTyping(ctx context.Context, client *ws.Client, event model.WSEvent) error {
	var p struct {
		ConversationID uuid.UUID           `json:"conversation_id" binding:"required"`
		Status         model.PresenceState `json:"status"`
		IsTyping       *bool               `json:"is_typing"`
	}
	if err := decodePayload(event, &p); err != nil {
		return err
	}
	if err := validate(&p); err != nil {
		return err
	}

	req := model.SetPresenceRequest{Status: p.Status}
	if req.Status == "" && p.IsTyping != nil {
		req.Status = model.PresenceIdle
		if *p.IsTyping {
			req.Status = model.PresenceTyping
		}
	}
	if err := validate(&req); err != nil {
		return err
	}
	return h.presenceService.SetStatus(ctx, p.ConversationID, client.UserID, client.Name, req.Status)
}

func (h *WSHandler) handleSendMessage(ctx context.Context, client *ws.Client, event model.WSEvent) error {
	var p struct {
		ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
		model.SendMessageRequest
	}
	if err := decodePayload(event, &p); err != nil {
		return err
	}
	if err := validate(&p); err != nil {
		return err
	}

	_, err := h.chatService.SendMessage(ctx, p.ConversationID, client.UserID, p.SendMessageRequest)
	return err
}

func (h *WSHandler) handleMarkRead(ctx context.Context, client *ws.Client, event model.WSEvent) error {
	convID, err := decodeConversation(event)
	if err != nil {
		return err
	}
	_, err = h.chatService.MarkRead(ctx, convID, client.UserID)
	return err
}

func (h *WSHandler) handleCallSignal(ctx context.Context, client *ws.Client, event model.WSEvent) error {
	var p struct {
		CallID uuid.UUID `json:"call_id" binding:"required"`
		model.SignalRequest
	}
	if err := decodePayload(event, &p); err != nil {
		return err
	}
	if err := validate(&p); err != nil {
		return err
	}
	return h.callService.Signal(ctx, p.CallID, client.UserID, p.TargetUserID, p.Signal)
}
