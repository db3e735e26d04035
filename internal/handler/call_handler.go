package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/service"
)

// CallHandler handles call session endpoints
type CallHandler struct {
	callService *service.CallService
}

func NewCallHandler(callService *service.CallService) *CallHandler {
	return &CallHandler{callService: callService}
}

// InitiateCall godoc
// @Summary Start a call in a conversation
// @Description Creates a ringing call with the caller as its only participant and rings the conversation.
// @Tags Calls
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.InitiateCallRequest true "Call request"
// @Success 201 {object} model.CallSession
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /calls [post]
func (h *CallHandler) InitiateCall(c *gin.Context) {
	var req model.InitiateCallRequest
	if !bindJSON(c, &req) {
		return
	}

	call, err := h.callService.InitiateCall(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// GetCall godoc
// @Summary Get a call
// @Tags Calls
// @Produce json
// @Security BearerAuth
// @Param id path string true "Call ID"
// @Success 200 {object} model.CallSession
// @Failure 404 {object} model.ErrorResponse
// @Router /calls/{id} [get]
func (h *CallHandler) GetCall(c *gin.Context) {
	callID, ok := pathUUID(c, "id", "call_id")
	if !ok {
		return
	}

	call, err := h.callService.GetCall(c.Request.Context(), callID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// JoinCall godoc
// @Summary Join a call
// @Tags Calls
// @Produce json
// @Security BearerAuth
// @Param id path string true "Call ID"
// @Success 200 {object} model.CallSession
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /calls/{id}/join [post]
func (h *CallHandler) JoinCall(c *gin.Context) {
	callID, ok := pathUUID(c, "id", "call_id")
	if !ok {
		return
	}

	call, err := h.callService.JoinCall(c.Request.Context(), callID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// EndCall godoc
// @Summary End or leave a call
// @Description The initiator ends the call for everyone; any other participant only leaves it.
// @Tags Calls
// @Produce json
// @Security BearerAuth
// @Param id path string true "Call ID"
// @Success 200 {object} model.CallSession
// @Failure 404 {object} model.ErrorResponse
// @Router /calls/{id}/end [post]
func (h *CallHandler) EndCall(c *gin.Context) {
	callID, ok := pathUUID(c, "id", "call_id")
	if !ok {
		return
	}

	call, err := h.callService.EndCall(c.Request.Context(), callID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// Signal godoc
// @Summary Relay a WebRTC signal to one participant
// @Tags Calls
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Call ID"
// @Param body body model.SignalRequest true "Signal"
// @Success 202 {object} model.SuccessResponse
// @Router /calls/{id}/signal [post]
func (h *CallHandler) Signal(c *gin.Context) {
	callID, ok := pathUUID(c, "id", "call_id")
	if !ok {
		return
	}

	var req model.SignalRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.callService.Signal(c.Request.Context(), callID, currentUser(c), req.TargetUserID, req.Signal); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, model.SuccessResponse{Message: "signal relayed"})
}

// ListOpenCalls godoc
// @Summary Ringing and active calls of a conversation
// @Tags Calls
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {array} model.CallSession
// @Router /conversations/{id}/calls [get]
func (h *CallHandler) ListOpenCalls(c *gin.Context) {
	convID, ok := pathUUID(c, "id", "conversation_id")
	if !ok {
		return
	}

	calls, err := h.callService.ListOpenCalls(c.Request.Context(), convID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calls)
}
