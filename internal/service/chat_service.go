package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxMessagePage = 200
	pushTimeout    = 10 * time.Second
)

// Notifier delivers a new message to a participant who has no live connection
type Notifier interface {
	SendMessageNotification(ctx context.Context, receiverID uuid.UUID, msg *model.Message) error
}

// ChatService handles conversations and messages
type ChatService struct {
	convRepo    *repository.ConversationRepository
	msgRepo     *repository.MessageRepository
	userRepo    *repository.UserRepository
	broadcaster Broadcaster
	notifier    Notifier
	log         *zap.Logger
	now         Clock
}

func NewChatService(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	broadcaster Broadcaster,
	notifier Notifier,
	log *zap.Logger,
) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		userRepo:    userRepo,
		broadcaster: orNop(broadcaster),
		notifier:    notifier,
		log:         log,
		now:         UTCNow,
	}
}

// ListConversations returns the user's non-archived conversations, latest activity first,
// each with its most recent message and the unread flag
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, opts model.ConversationListOptions) ([]model.ConversationResponse, error) {
	conversations, err := s.convRepo.ListForUser(ctx, userID, opts)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}

	result := make([]model.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		conv := conversations[i]
		if err := s.attachLastMessage(ctx, &conv); err != nil {
			return nil, err
		}
		result = append(result, model.ConversationResponse{
			Conversation: conv,
			UnreadCount:  UnreadFlag(&conv, userID),
		})
	}
	return result, nil
}

// UnreadFlag is 1 when the latest message is newer than the user's last read (or they never read), else 0.
// It is a has-unread marker, not a tally.
func UnreadFlag(conv *model.Conversation, userID uuid.UUID) int {
	if conv.LastMessage == nil {
		return 0
	}
	p := conv.Participant(userID)
	if p == nil || p.LastReadAt == nil || conv.LastMessage.CreatedAt.After(*p.LastReadAt) {
		return 1
	}
	return 0
}

func (s *ChatService) attachLastMessage(ctx context.Context, conv *model.Conversation) error {
	last, err := s.msgRepo.GetLastMessage(ctx, conv.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "message")
	}
	conv.LastMessage = last
	return nil
}

// CreateConversation creates a group, or finds-or-creates the direct conversation of a user pair.
// The bool reports whether a new conversation was created.
func (s *ChatService) CreateConversation(ctx context.Context, creatorID uuid.UUID, req model.CreateConversationRequest) (*model.Conversation, bool, error) {
	others := dedupe(req.ParticipantIDs, creatorID)

	switch req.Type {
	case model.ConversationTypeDirect:
		if len(others) != 1 {
			return nil, false, apperror.Invalid("participant_ids", "a direct conversation needs exactly one other participant")
		}
		return s.findOrCreateDirect(ctx, creatorID, others[0])
	case model.ConversationTypeGroup:
		if len(others) == 0 {
			return nil, false, apperror.Invalid("participant_ids", "at least one participant is required")
		}
		conv, err := s.createGroup(ctx, creatorID, others, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
		return conv, err == nil, err
	default:
		return nil, false, apperror.Invalid("type", "must be direct or group")
	}
}

func (s *ChatService) findOrCreateDirect(ctx context.Context, creatorID, otherID uuid.UUID) (*model.Conversation, bool, error) {
	existing, err := s.convRepo.FindDirect(ctx, creatorID, otherID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, storeErr(err, "conversation")
	}

	users, err := s.resolveUsers(ctx, []uuid.UUID{creatorID, otherID})
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	key := model.DirectKeyFor(creatorID, otherID)
	conv := &model.Conversation{
		Type:      model.ConversationTypeDirect,
		DirectKey: &key,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []model.ConversationMember{
			model.MemberFromUser(users[creatorID], true, now),
			model.MemberFromUser(users[otherID], false, now),
		},
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		// lost a race against a concurrent create of the same pair
		if existing, findErr := s.convRepo.FindDirect(ctx, creatorID, otherID); findErr == nil {
			return existing, false, nil
		}
		return nil, false, storeErr(err, "conversation")
	}

	s.announceCreated(conv)
	return conv, true, nil
}

func (s *ChatService) createGroup(ctx context.Context, creatorID uuid.UUID, others []uuid.UUID, name, description string) (*model.Conversation, error) {
	ids := append([]uuid.UUID{creatorID}, others...)
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conv := &model.Conversation{
		Type:        model.ConversationTypeGroup,
		Name:        name,
		Description: description,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, id := range ids {
		// creator is the sole initial admin
		conv.Participants = append(conv.Participants, model.MemberFromUser(users[id], i == 0, now.Add(time.Duration(i)*time.Microsecond)))
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, storeErr(err, "conversation")
	}

	s.announceCreated(conv)
	return conv, nil
}

func (s *ChatService) announceCreated(conv *model.Conversation) {
	for _, id := range conv.ParticipantIDs() {
		s.broadcaster.EmitToUser(id, model.EventConversationCreated, conv)
	}
}

// resolveUsers fails with NotFound if any id is not in the directory
func (s *ChatService) resolveUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	users, err := s.userRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	byID := make(map[uuid.UUID]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperror.NotFound("user")
		}
	}
	return byID, nil
}

// loadForParticipant loads a conversation and checks that userID belongs to it
func (s *ChatService) loadForParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}
	if conv.Participant(userID) == nil {
		return nil, apperror.ErrForbidden
	}
	return conv, nil
}

// GetConversation returns a conversation the user participates in
func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (*model.ConversationResponse, error) {
	conv, err := s.loadForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.attachLastMessage(ctx, conv); err != nil {
		return nil, err
	}
	return &model.ConversationResponse{Conversation: *conv, UnreadCount: UnreadFlag(conv, userID)}, nil
}

// ListMessages returns messages oldest first; participants only
func (s *ChatService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, opts model.ListOptions) ([]model.Message, error) {
	if _, err := s.loadForParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if opts.Limit > maxMessagePage {
		opts.Limit = maxMessagePage
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conversationID, opts)
	if err != nil {
		return nil, storeErr(err, "message")
	}
	return messages, nil
}

// normalizeMessage defaults the kind to text. A text message keeps no file
// reference, so it must carry words of its own.
func normalizeMessage(req *model.SendMessageRequest) error {
	if req.Kind == "" {
		req.Kind = model.MessageKindText
	}
	if req.Kind.CarriesFile() {
		return nil
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperror.Invalid("content", "message content is required")
	}
	req.FileURL, req.FileName = "", ""
	return nil
}

// SendMessage appends a message and broadcasts it to the conversation room
func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, req model.SendMessageRequest) (*model.Message, error) {
	if err := normalizeMessage(&req); err != nil {
		return nil, err
	}

	conv, err := s.loadForParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	// snapshot of how the sender looks right now
	member := conv.Participant(senderID)
	name, avatar := member.DisplayName, member.AvatarURL
	if u, err := s.userRepo.FindByID(ctx, senderID); err == nil {
		name, avatar = u.Name, u.AvatarURL
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeErr(err, "user")
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     name,
		SenderAvatar:   avatar,
		Content:        req.Content,
		Kind:           req.Kind,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		ReplyToID:      req.ReplyToID,
		CreatedAt:      s.now(),
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, storeErr(err, "message")
	}

	s.broadcaster.EmitToConversation(conversationID, model.EventNewMessage, msg, uuid.Nil)
	s.notifyOffline(conv, msg)
	return msg, nil
}

// notifyOffline pushes to participants without a live connection; failures are only logged
func (s *ChatService) notifyOffline(conv *model.Conversation, msg *model.Message) {
	if s.notifier == nil {
		return
	}
	var offline []uuid.UUID
	for _, id := range conv.ParticipantIDs() {
		if id != msg.SenderID && !s.broadcaster.IsUserOnline(id) {
			offline = append(offline, id)
		}
	}
	if len(offline) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		for _, id := range offline {
			if err := s.notifier.SendMessageNotification(ctx, id, msg); err != nil {
				s.log.Warn("push notification failed",
					zap.String("user_id", id.String()),
					zap.String("message_id", msg.ID.String()),
					zap.Error(err))
			}
		}
	}()
}

// MarkRead acknowledges every message in the conversation for userID and returns the read time
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (time.Time, error) {
	if _, err := s.loadForParticipant(ctx, conversationID, userID); err != nil {
		return time.Time{}, err
	}

	at := s.now()
	if _, err := s.msgRepo.MarkRead(ctx, conversationID, userID, at); err != nil {
		return time.Time{}, storeErr(err, "conversation")
	}

	s.broadcaster.EmitToConversation(conversationID, model.EventConversationRead, model.ConversationReadEvent{
		ConversationID: conversationID,
		UserID:         userID,
		ReadAt:         at,
	}, uuid.Nil)
	return at, nil
}

// AddParticipants appends users to a group; admins only
func (s *ChatService) AddParticipants(ctx context.Context, conversationID, requesterID uuid.UUID, userIDs []uuid.UUID) (*model.Conversation, error) {
	conv, err := s.loadForParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup || !conv.IsAdmin(requesterID) {
		return nil, apperror.ErrForbidden
	}

	ids := dedupe(userIDs, uuid.Nil)
	if len(ids) == 0 {
		return nil, apperror.Invalid("participant_ids", "at least one participant is required")
	}
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	members := make([]model.ConversationMember, 0, len(ids))
	for _, id := range ids {
		if conv.Participant(id) != nil {
			continue
		}
		members = append(members, model.MemberFromUser(users[id], false, now))
	}
	if len(members) == 0 {
		return conv, nil
	}

	added, err := s.convRepo.AddMembers(ctx, conversationID, members, now)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}

	updated, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}

	if len(added) > 0 {
		event := model.ParticipantsAddedEvent{ConversationID: conversationID, Participants: added}
		s.broadcaster.EmitToConversation(conversationID, model.EventParticipantsAdded, event, uuid.Nil)
		for _, m := range added {
			s.broadcaster.EmitToUser(m.UserID, model.EventConversationCreated, updated)
		}
	}
	return updated, nil
}

// RemoveParticipant removes targetID; allowed for admins and for self-leave
func (s *ChatService) RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.loadForParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	// a direct conversation always keeps its two participants
	if conv.Type != model.ConversationTypeGroup {
		return nil, apperror.ErrForbidden
	}
	if requesterID != targetID && !conv.IsAdmin(requesterID) {
		return nil, apperror.ErrForbidden
	}
	if conv.Participant(targetID) == nil {
		return nil, apperror.NotFound("participant")
	}

	removed, err := s.convRepo.RemoveMember(ctx, conversationID, targetID, s.now())
	if err != nil {
		return nil, storeErr(err, "conversation")
	}

	updated, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation")
	}

	if removed {
		event := model.ParticipantRemovedEvent{ConversationID: conversationID, UserID: targetID}
		s.broadcaster.EmitToConversation(conversationID, model.EventParticipantRemoved, event, uuid.Nil)
		s.broadcaster.EmitToUser(targetID, model.EventParticipantRemoved, event)
		s.broadcaster.EvictFromConversation(conversationID, targetID)
	}
	return updated, nil
}

// ArchiveConversation hides a conversation from listings.
// Either participant may archive a direct conversation; groups need an admin.
func (s *ChatService) ArchiveConversation(ctx context.Context, conversationID, requesterID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.loadForParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if conv.Type == model.ConversationTypeGroup && !conv.IsAdmin(requesterID) {
		return nil, apperror.ErrForbidden
	}

	if err := s.convRepo.Archive(ctx, conversationID); err != nil {
		return nil, storeErr(err, "conversation")
	}
	conv.IsArchived = true
	return conv, nil
}

// IsParticipant is the cheap membership check used when joining a conversation room
func (s *ChatService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.loadForParticipant(ctx, conversationID, userID)
	return err
}
