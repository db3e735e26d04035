package handler

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
)

func init() {
	// report json names (conversation_id) instead of Go field names (ConversationID)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// bindError turns a binding failure into a ValidationError naming the first bad field
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.Invalid(fe.Field(), describe(fe))
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperror.Invalid(typeErr.Field, "has the wrong type")
	}
	return apperror.Invalid("body", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without", "required_if":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "needs at least " + fe.Param() + " entries"
	default:
		return "is invalid"
	}
}

// validate runs the binding rules on a payload that did not come through gin (socket events)
func validate(obj interface{}) error {
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return bindError(err)
	}
	return nil
}

// bindJSON decodes and validates the body, answering 400 on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, bindError(err))
		return false
	}
	return true
}
