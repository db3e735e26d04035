package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/service"
)

// UserHandler exposes directory lookups and push device registration
type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMe godoc
// @Summary Current user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UserResponse
// @Router /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SearchUsers godoc
// @Summary Search the user directory by name or email
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search query"
// @Param limit query int false "Max results (default 20, max 50)"
// @Success 200 {array} model.UserResponse
// @Router /users/search [get]
func (h *UserHandler) SearchUsers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	users, err := h.userService.SearchUsers(c.Request.Context(), currentUser(c), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// RegisterDevice godoc
// @Summary Register an FCM token for push notifications
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Device"
// @Success 200 {object} model.SuccessResponse
// @Router /devices [post]
func (h *UserHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.RegisterDevice(c.Request.Context(), currentUser(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "device registered"})
}
