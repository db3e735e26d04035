package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/presence"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
)

// PresenceService records typing/recording state and relays it to the conversation room.
// The client owns the debounce: it sends typing on keypress and idle after its own timeout.
type PresenceService struct {
	store       presence.Store
	convRepo    *repository.ConversationRepository
	broadcaster Broadcaster
	now         Clock
}

func NewPresenceService(store presence.Store, convRepo *repository.ConversationRepository, broadcaster Broadcaster) *PresenceService {
	return &PresenceService{
		store:       store,
		convRepo:    convRepo,
		broadcaster: orNop(broadcaster),
		now:         UTCNow,
	}
}

func (s *PresenceService) requireMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	ok, err := s.convRepo.IsMember(ctx, conversationID, userID)
	if err != nil {
		return storeErr(err, "conversation")
	}
	if !ok {
		return apperror.ErrForbidden
	}
	return nil
}

// SetStatus upserts the (user, conversation) entry and broadcasts typing_status to everyone else
func (s *PresenceService) SetStatus(ctx context.Context, conversationID, userID uuid.UUID, userName string, state model.PresenceState) error {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	entry := model.PresenceEntry{
		UserID:         userID,
		UserName:       userName,
		ConversationID: conversationID,
		State:          state,
		LastUpdated:    s.now(),
	}
	if err := s.store.Set(ctx, entry); err != nil {
		return apperror.Transient(err)
	}

	s.broadcaster.EmitToConversation(conversationID, model.EventTypingStatus, model.TypingStatusEvent{
		ConversationID: conversationID,
		UserID:         userID,
		UserName:       userName,
		IsTyping:       state != model.PresenceIdle,
		Status:         state,
	}, userID)
	return nil
}

// GetActiveStatuses returns the other users currently typing or recording
func (s *PresenceService) GetActiveStatuses(ctx context.Context, conversationID, userID uuid.UUID) ([]model.PresenceEntry, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	entries, err := s.store.Active(ctx, conversationID, userID, s.now())
	if err != nil {
		return nil, apperror.Transient(err)
	}
	return entries, nil
}
