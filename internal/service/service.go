package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"gorm.io/gorm"
)

// Broadcaster pushes events to connected clients after a mutation commits.
// Implemented by the realtime gateway; delivery is best-effort and never fails the caller.
type Broadcaster interface {
	EmitToConversation(conversationID uuid.UUID, eventType string, payload interface{}, excludeUserID uuid.UUID)
	EmitToUser(userID uuid.UUID, eventType string, payload interface{})
	IsUserOnline(userID uuid.UUID) bool
	// EvictFromConversation stops room delivery to a user who no longer participates
	EvictFromConversation(conversationID, userID uuid.UUID)
}

type nopBroadcaster struct{}

func (nopBroadcaster) EmitToConversation(uuid.UUID, string, interface{}, uuid.UUID) {}
func (nopBroadcaster) EmitToUser(uuid.UUID, string, interface{})                    {}
func (nopBroadcaster) IsUserOnline(uuid.UUID) bool                                  { return false }
func (nopBroadcaster) EvictFromConversation(uuid.UUID, uuid.UUID)                   {}

func orNop(b Broadcaster) Broadcaster {
	if b == nil {
		return nopBroadcaster{}
	}
	return b
}

// Clock returns the current time; overridden in tests
type Clock func() time.Time

// UTCNow truncates to microseconds, the precision Postgres keeps
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// storeErr maps a repository error into the error taxonomy
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NotFound(what)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperror.Transient(err)
	}
}

// dedupe drops duplicates and skip, keeping first-seen order
func dedupe(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == skip || id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
