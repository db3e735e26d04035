package apperror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := Invalid("participantIds", "at least one participant required")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "participantIds", FieldOf(err))
	assert.Equal(t, "participantIds: at least one participant required", err.Error())
}

func TestTransientKeepsCause(t *testing.T) {
	err := Transient(context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrTransientStore)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, Transient(nil))
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("call")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "call not found", err.Error())
	assert.Empty(t, FieldOf(err))
}
