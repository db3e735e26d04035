package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	me, err := f.users.GetUser(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Name)
	assert.Equal(t, model.UserRoleTeacher, me.Role)

	_, err = f.users.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	found, err := f.users.SearchUsers(ctx, f.alice.ID, "CAR", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.carol.ID, found[0].ID)

	_, err = f.users.SearchUsers(ctx, f.alice.ID, "  ", 0)
	assert.Equal(t, "q", apperror.FieldOf(err))

	assert.Equal(t, "fcm_token", apperror.FieldOf(f.users.RegisterDevice(ctx, f.alice.ID, model.RegisterDeviceRequest{})))
	require.NoError(t, f.users.RegisterDevice(ctx, f.alice.ID, model.RegisterDeviceRequest{FCMToken: "tok"}))

	f.users.SetOnline(f.alice.ID, true)
	me, err = f.users.GetUser(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, me.IsOnline)
}
