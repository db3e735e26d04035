package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/middleware"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
)

// classify maps an error to its status code and machine-readable code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, apperror.ErrTransientStore):
		return http.StatusServiceUnavailable, "transient_store_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorBody is the client-facing view of err. Permission failures never say which check failed.
func errorBody(err error) (int, model.ErrorResponse) {
	status, code := classify(err)
	resp := model.ErrorResponse{Code: code}

	switch status {
	case http.StatusUnauthorized:
		resp.Error = "please sign in"
	case http.StatusForbidden:
		resp.Error = apperror.ErrForbidden.Error()
	case http.StatusNotFound:
		resp.Error = err.Error()
	case http.StatusBadRequest:
		resp.Error = "Invalid request"
		resp.Message = err.Error()
		resp.Field = apperror.FieldOf(err)
	case http.StatusGatewayTimeout:
		resp.Error = "request timed out"
	case http.StatusServiceUnavailable:
		resp.Error = "service temporarily unavailable, please retry"
	default:
		resp.Error = "internal server error"
	}
	return status, resp
}

func respondError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	respondError(c, apperror.Invalid(field, message))
}

// currentUser returns the authenticated caller id
func currentUser(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.UserIDKey).(uuid.UUID)
}

// pathUUID parses a path parameter, answering 400 on failure
func pathUUID(c *gin.Context, name, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, field, "must be a valid id")
		return uuid.Nil, false
	}
	return id, true
}
