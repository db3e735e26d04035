package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
)

// CallService tracks call sessions (ringing -> active -> ended) and relays WebRTC signals.
// An unanswered call keeps ringing until its initiator ends it.
type CallService struct {
	callRepo    *repository.CallRepository
	convRepo    *repository.ConversationRepository
	broadcaster Broadcaster
	now         Clock
}

func NewCallService(callRepo *repository.CallRepository, convRepo *repository.ConversationRepository, broadcaster Broadcaster) *CallService {
	return &CallService{
		callRepo:    callRepo,
		convRepo:    convRepo,
		broadcaster: orNop(broadcaster),
		now:         UTCNow,
	}
}

// member loads the conversation and returns userID's membership, or Forbidden
func (s *CallService) member(ctx context.Context, conversationID, userID uuid.UUID) (*model.ConversationMember, error) {
	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}
	m := conv.Participant(userID)
	if m == nil {
		return nil, apperror.ErrForbidden
	}
	return m, nil
}

// openCall loads a call that has not ended; ended calls read as NotFound
func (s *CallService) openCall(ctx context.Context, callID uuid.UUID) (*model.CallSession, error) {
	call, err := s.callRepo.FindByID(ctx, callID)
	if err != nil {
		return nil, storeErr(err, "call")
	}
	if call.Status == model.CallStatusEnded {
		return nil, apperror.NotFound("call")
	}
	return call, nil
}

func (s *CallService) reload(ctx context.Context, callID uuid.UUID) (*model.CallSession, error) {
	call, err := s.callRepo.FindByID(ctx, callID)
	if err != nil {
		return nil, storeErr(err, "call")
	}
	return call, nil
}

// InitiateCall opens a ringing call with the caller as its only participant
func (s *CallService) InitiateCall(ctx context.Context, callerID uuid.UUID, req model.InitiateCallRequest) (*model.CallSession, error) {
	caller, err := s.member(ctx, req.ConversationID, callerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	call := &model.CallSession{
		ConversationID: req.ConversationID,
		Type:           req.Type,
		InitiatorID:    callerID,
		Status:         model.CallStatusRinging,
		StartedAt:      now,
		Participants: []model.CallParticipant{{
			UserID:   callerID,
			UserName: caller.DisplayName,
			Status:   model.CallParticipantConnected,
			JoinedAt: now,
		}},
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, storeErr(err, "call")
	}

	s.broadcaster.EmitToConversation(call.ConversationID, model.EventIncomingCall, call, uuid.Nil)
	return call, nil
}

// JoinCall adds userID to the call and makes it active. Joining twice is a no-op.
func (s *CallService) JoinCall(ctx context.Context, callID, userID uuid.UUID) (*model.CallSession, error) {
	call, err := s.openCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	m, err := s.member(ctx, call.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if call.HasParticipant(userID) {
		return call, nil
	}

	joined, err := s.callRepo.AddParticipant(ctx, callID, model.CallParticipant{
		UserID:   userID,
		UserName: m.DisplayName,
		Status:   model.CallParticipantConnected,
		JoinedAt: s.now(),
	})
	if errors.Is(err, repository.ErrCallEnded) {
		return nil, apperror.NotFound("call")
	}
	if err != nil {
		return nil, storeErr(err, "call")
	}
	if !joined {
		return s.reload(ctx, callID)
	}

	s.broadcaster.EmitToConversation(call.ConversationID, model.EventCallParticipantJoined, model.CallParticipantJoinedEvent{
		CallID:   callID,
		UserID:   userID,
		UserName: m.DisplayName,
	}, uuid.Nil)
	return s.reload(ctx, callID)
}

// EndCall ends the call for everyone when the initiator calls it; anyone else only leaves
func (s *CallService) EndCall(ctx context.Context, callID, userID uuid.UUID) (*model.CallSession, error) {
	call, err := s.openCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	switch {
	case userID == call.InitiatorID:
		err := s.callRepo.End(ctx, callID, s.now())
		if errors.Is(err, repository.ErrCallEnded) {
			return nil, apperror.NotFound("call")
		}
		if err != nil {
			return nil, storeErr(err, "call")
		}
		s.broadcaster.EmitToConversation(call.ConversationID, model.EventCallEnded, model.CallEndedEvent{CallID: callID}, uuid.Nil)

	case call.HasParticipant(userID):
		if err := s.callRepo.RemoveParticipant(ctx, callID, userID); err != nil {
			return nil, storeErr(err, "call")
		}
		s.broadcaster.EmitToConversation(call.ConversationID, model.EventCallParticipantLeft, model.CallParticipantLeftEvent{
			CallID: callID,
			UserID: userID,
		}, uuid.Nil)

	default:
		return nil, apperror.ErrForbidden
	}

	return s.reload(ctx, callID)
}

// Signal relays an opaque WebRTC payload to the target user's private room. The call is not mutated.
func (s *CallService) Signal(ctx context.Context, callID, fromUserID, targetUserID uuid.UUID, signal json.RawMessage) error {
	if string(signal) == "null" {
		return apperror.Invalid("signal", "signal payload is required")
	}

	call, err := s.openCall(ctx, callID)
	if err != nil {
		return err
	}
	if _, err := s.member(ctx, call.ConversationID, fromUserID); err != nil {
		return err
	}
	ok, err := s.convRepo.IsMember(ctx, call.ConversationID, targetUserID)
	if err != nil {
		return storeErr(err, "conversation")
	}
	if !ok {
		return apperror.ErrForbidden
	}

	s.broadcaster.EmitToUser(targetUserID, model.EventCallSignal, model.CallSignalEvent{
		CallID:     callID,
		FromUserID: fromUserID,
		Signal:     signal,
	})
	return nil
}

// GetCall returns a call of a conversation the user participates in, ended or not
func (s *CallService) GetCall(ctx context.Context, callID, userID uuid.UUID) (*model.CallSession, error) {
	call, err := s.reload(ctx, callID)
	if err != nil {
		return nil, err
	}
	if _, err := s.member(ctx, call.ConversationID, userID); err != nil {
		return nil, err
	}
	return call, nil
}

// ListOpenCalls returns ringing and active calls of a conversation, for re-sync after reconnect
func (s *CallService) ListOpenCalls(ctx context.Context, conversationID, userID uuid.UUID) ([]model.CallSession, error) {
	if _, err := s.member(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	calls, err := s.callRepo.ListOpenForConversation(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "call")
	}
	return calls, nil
}
