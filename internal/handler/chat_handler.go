package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/middleware"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/service"
)

// ChatHandler handles conversation, message and presence endpoints
type ChatHandler struct {
	chatService     *service.ChatService
	presenceService *service.PresenceService
}

func NewChatHandler(chatService *service.ChatService, presenceService *service.PresenceService) *ChatHandler {
	return &ChatHandler{chatService: chatService, presenceService: presenceService}
}

// GetConversations godoc
// @Summary List the caller's conversations
// @Description Non-archived conversations, latest activity first, each with its last message and unread flag.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (0 = all)"
// @Param offset query int false "Offset"
// @Success 200 {array} model.ConversationResponse
// @Router /conversations [get]
func (h *ChatHandler) GetConversations(c *gin.Context) {
	var opts model.ConversationListOptions
	if err := c.ShouldBindQuery(&opts); err != nil || opts.Limit < 0 || opts.Offset < 0 {
		badRequest(c, "limit", "limit and offset must be non-negative integers")
		return
	}

	conversations, err := h.chatService.ListConversations(c.Request.Context(), currentUser(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// CreateConversation godoc
// @Summary Create a conversation
// @Description A direct conversation between the same two users is created once; later calls return it with 200.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.CreateConversationRequest true "Create conversation request"
// @Success 201 {object} model.Conversation
// @Success 200 {object} model.Conversation
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations [post]
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req model.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, created, err := h.chatService.CreateConversation(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.ConversationResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), convID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ArchiveConversation godoc
// @Summary Archive a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/archive [post]
func (h *ChatHandler) ArchiveConversation(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	conv, err := h.chatService.ArchiveConversation(c.Request.Context(), convID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetMessages godoc
// @Summary List messages of a conversation
// @Description Oldest first. With before, returns the limit messages preceding that message.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param before query string false "Cursor: message ID"
// @Param limit query int false "Page size (0 = all)"
// @Success 200 {array} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	var q model.MessageListQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Limit < 0 {
		badRequest(c, "limit", "limit must be a non-negative integer")
		return
	}
	opts := model.ListOptions{Limit: q.Limit}
	if q.Before != "" {
		before, err := uuid.Parse(q.Before)
		if err != nil {
			badRequest(c, "before", "must be a valid message id")
			return
		}
		opts.Before = &before
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), convID, currentUser(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage godoc
// @Summary Send a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SendMessageRequest true "Message"
// @Success 201 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), convID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkAsRead godoc
// @Summary Mark a conversation as read
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.ConversationReadEvent
// @Router /conversations/{id}/read [post]
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	userID := currentUser(c)
	readAt, err := h.chatService.MarkRead(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ConversationReadEvent{ConversationID: convID, UserID: userID, ReadAt: readAt})
}

// AddParticipants godoc
// @Summary Add participants to a group
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.AddParticipantsRequest true "Users to add"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants [post]
func (h *ChatHandler) AddParticipants(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	var req model.AddParticipantsRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.chatService.AddParticipants(c.Request.Context(), convID, currentUser(c), req.ParticipantIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// RemoveParticipant godoc
// @Summary Remove a participant (or leave)
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants/{userId} [delete]
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}
	targetID, ok := pathUUID(c, "userId", "user_id")
	if !ok {
		return
	}

	conv, err := h.chatService.RemoveParticipant(c.Request.Context(), convID, currentUser(c), targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// SetPresence godoc
// @Summary Set typing/recording status
// @Tags Presence
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SetPresenceRequest true "Status"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/presence [put]
func (h *ChatHandler) SetPresence(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	var req model.SetPresenceRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.presenceService.SetStatus(c.Request.Context(), convID, currentUser(c), c.GetString(middleware.UserNameKey), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "ok"})
}

// GetPresence godoc
// @Summary Who else is typing or recording
// @Tags Presence
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {array} model.PresenceEntry
// @Router /conversations/{id}/presence [get]
func (h *ChatHandler) GetPresence(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	entries, err := h.presenceService.GetActiveStatuses(c.Request.Context(), convID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
