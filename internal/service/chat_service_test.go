package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConversation_DirectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{f.bob.ID},
	})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{f.bob.ID},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	reversed, _, err := f.chat.CreateConversation(ctx, f.bob.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{f.alice.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, reversed.ID)

	require.Len(t, first.Participants, 2)
	assert.Equal(t, f.alice.ID, first.Participants[0].UserID)
	assert.True(t, first.Participants[0].IsAdmin)
	assert.False(t, first.Participants[1].IsAdmin)

	assert.Len(t, f.bus.ofType(model.EventConversationCreated), 2, "announced once, to both users")
}

func TestCreateConversation_ConcurrentDirectCreatesConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 6)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.alice, f.bob
			if i%2 == 1 {
				a, b = b, a
			}
			conv, _, err := f.chat.CreateConversation(ctx, a.ID, model.CreateConversationRequest{
				Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{b.ID},
			})
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateConversation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{f.bob.ID, f.carol.ID},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "participant_ids", apperror.FieldOf(err))

	_, _, err = f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{f.alice.ID},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation, "a user cannot open a direct conversation with themselves")

	_, _, err = f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{Type: "channel"})
	assert.Equal(t, "type", apperror.FieldOf(err))

	_, _, err = f.chat.CreateConversation(ctx, f.alice.ID, model.CreateConversationRequest{
		Type: model.ConversationTypeGroup, ParticipantIDs: []uuid.UUID{f.bob.ID, uuid.New()},
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var count int64
	f.db.Model(&model.Conversation{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateConversation_Group(t *testing.T) {
	f := newFixture(t)

	conv, _, err := f.chat.CreateConversation(context.Background(), f.alice.ID, model.CreateConversationRequest{
		Type:           model.ConversationTypeGroup,
		Name:           "  Physics  ",
		ParticipantIDs: []uuid.UUID{f.bob.ID, f.carol.ID, f.bob.ID, f.alice.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, "Physics", conv.Name)
	assert.Equal(t, []uuid.UUID{f.alice.ID, f.bob.ID, f.carol.ID}, conv.ParticipantIDs())
	assert.True(t, conv.IsAdmin(f.alice.ID))
	assert.False(t, conv.IsAdmin(f.bob.ID))
	assert.Nil(t, conv.DirectKey)
	assert.Equal(t, model.UserRoleTeacher, conv.Participant(f.alice.ID).Role)
}

func TestListMessages_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t, f.alice, f.bob)
	m1 := f.say(t, conv, f.alice, "hello")
	m2 := f.say(t, conv, f.bob, "hi teacher")

	_, err := f.chat.ListMessages(ctx, conv.ID, f.carol.ID, model.ListOptions{})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	msgs, err := f.chat.ListMessages(ctx, conv.ID, f.bob.ID, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)

	_, err = f.chat.ListMessages(ctx, uuid.New(), f.bob.ID, model.ListOptions{})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListMessages_SameTimestampKeepsSendOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t, f.alice, f.bob)
	f.chat.now = f.clock.Now

	var sent []uuid.UUID
	for i := 0; i < 10; i++ {
		sent = append(sent, f.say(t, conv, f.alice, fmt.Sprintf("m%d", i)).ID)
	}

	msgs, err := f.chat.ListMessages(ctx, conv.ID, f.bob.ID, model.ListOptions{})
	require.NoError(t, err)
	var got []uuid.UUID
	for _, m := range msgs {
		got = append(got, m.ID)
	}
	assert.Equal(t, sent, got)

	page, err := f.chat.ListMessages(ctx, conv.ID, f.bob.ID, model.ListOptions{Before: &sent[6], Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, sent[3], page[0].ID)
	assert.Equal(t, sent[5], page[2].ID)

	resp, err := f.chat.GetConversation(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	require.NotNil(t, resp.LastMessage)
	assert.Equal(t, sent[9], resp.LastMessage.ID)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t, f.alice, f.bob)

	_, err := f.chat.SendMessage(ctx, conv.ID, f.carol.ID, model.SendMessageRequest{Content: "let me in"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.chat.SendMessage(ctx, conv.ID, f.alice.ID, model.SendMessageRequest{Content: "   "})
	assert.Equal(t, "content", apperror.FieldOf(err))

	// a bare file reference is not a text message
	_, err = f.chat.SendMessage(ctx, conv.ID, f.alice.ID, model.SendMessageRequest{FileURL: "http://localhost:9000/hubtalk-media/a.png"})
	assert.Equal(t, "content", apperror.FieldOf(err))

	dangling := uuid.New()
	voice, err := f.chat.SendMessage(ctx, conv.ID, f.alice.ID, model.SendMessageRequest{
		Kind:      model.MessageKindVoice,
		FileURL:   "http://localhost:9000/hubtalk-media/voice/a.weba",
		FileName:  "a.weba",
		ReplyToID: &dangling,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageKindVoice, voice.Kind)
	assert.Equal(t, &dangling, voice.ReplyToID)
	assert.Equal(t, []uuid.UUID{f.alice.ID}, voice.ReadBy)
	assert.Equal(t, "alice", voice.SenderName)

	events := f.bus.ofType(model.EventNewMessage)
	require.Len(t, events, 1)
	assert.Equal(t, "conversation:"+conv.ID.String(), events[0].Room)
	assert.Equal(t, voice, events[0].Payload)
}

func TestSendMessage_SenderSnapshotIsNotLiveUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t, f.alice, f.bob)

	f.say(t, conv, f.alice, "before")
	require.NoError(t, f.db.Model(f.alice).Update("name", "Dr. Alice").Error)
	f.say(t, conv, f.alice, "after")

	msgs, err := f.chat.ListMessages(ctx, conv.ID, f.bob.ID, model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alice", msgs[0].SenderName)
	assert.Equal(t, "Dr. Alice", msgs[1].SenderName)
}

func TestSendMessage_PushesOnlyOfflineParticipants(t *testing.T) {
	f := newFixture(t)
	conv := f.group(t, f.alice, f.bob, f.carol)
	f.bus.online[f.bob.ID] = true

	f.say(t, conv, f.alice, "quiz tomorrow")

	assert.Eventually(t, func() bool {
		return len(f.notifier.targets()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uuid.UUID{f.carol.ID}, f.notifier.targets())
}

func TestReadByMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.alice, f.bob, f.carol)

	m1 := f.say(t, conv, f.alice, "one")
	m2 := f.say(t, conv, f.bob, "two")
	assert.Equal(t, []uuid.UUID{f.alice.ID}, m1.ReadBy)
	assert.Equal(t, []uuid.UUID{f.bob.ID}, m2.ReadBy)

	for _, u := range []*model.User{f.alice, f.bob, f.carol} {
		_, err := f.chat.MarkRead(ctx, conv.ID, u.ID)
		require.NoError(t, err)
	}
	_, err := f.chat.MarkRead(ctx, conv.ID, f.carol.ID)
	require.NoError(t, err, "marking again is a no-op")

	msgs, err := f.chat.ListMessages(ctx, conv.ID, f.alice.ID, model.ListOptions{})
	require.NoError(t, err)
	for _, m := range msgs {
		assert.ElementsMatch(t, []uuid.UUID{f.alice.ID, f.bob.ID, f.carol.ID}, m.ReadBy)
	}

	_, err = f.chat.MarkRead(ctx, conv.ID, f.dave.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Len(t, f.bus.ofType(model.EventConversationRead), 4)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.direct(t, f.alice, f.bob)

	m1, err := f.chat.SendMessage(ctx, x.ID, f.alice.ID, model.SendMessageRequest{Content: "hi", Kind: model.MessageKindText})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.alice.ID}, m1.ReadBy)

	msgs, err := f.chat.ListMessages(ctx, x.ID, f.bob.ID, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m1.ID, msgs[0].ID)

	pushed := f.bus.ofType(model.EventNewMessage)
	require.Len(t, pushed, 1)
	assert.Equal(t, m1.ID, pushed[0].Payload.(*model.Message).ID)

	listB, err := f.chat.ListConversations(ctx, f.bob.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	require.Len(t, listB, 1)
	assert.Equal(t, 1, listB[0].UnreadCount)

	_, err = f.chat.MarkRead(ctx, x.ID, f.bob.ID)
	require.NoError(t, err)

	msgs, err = f.chat.ListMessages(ctx, x.ID, f.bob.ID, model.ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{f.alice.ID, f.bob.ID}, msgs[0].ReadBy)

	listA, err := f.chat.ListConversations(ctx, f.alice.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.Equal(t, x.ID, listA[0].ID)
	assert.Equal(t, 0, listA[0].UnreadCount)
	require.NotNil(t, listA[0].LastMessage)
	assert.Equal(t, m1.ID, listA[0].LastMessage.ID)

	listB, err = f.chat.ListConversations(ctx, f.bob.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, listB[0].UnreadCount)
}

func TestListConversations_OrderAndArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.direct(t, f.alice, f.bob)
	newer := f.group(t, f.alice, f.carol)
	f.direct(t, f.bob, f.carol)

	list, err := f.chat.ListConversations(ctx, f.alice.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Nil(t, list[0].LastMessage)
	assert.Equal(t, 0, list[0].UnreadCount)

	f.say(t, older, f.bob, "ping")
	list, err = f.chat.ListConversations(ctx, f.alice.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID, "a new message moves the conversation to the top")
	assert.Equal(t, 1, list[0].UnreadCount)

	_, err = f.chat.ArchiveConversation(ctx, newer.ID, f.carol.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "only group admins archive")
	archived, err := f.chat.ArchiveConversation(ctx, newer.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	list, err = f.chat.ListConversations(ctx, f.alice.ID, model.ConversationListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, older.ID, list[0].ID)
}

func TestUnreadFlagIsNotATally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t, f.alice, f.bob)
	for i := 0; i < 3; i++ {
		f.say(t, conv, f.alice, "msg")
	}

	got, err := f.chat.GetConversation(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)

	_, err = f.chat.GetConversation(ctx, conv.ID, f.carol.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestAddParticipants_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, f.alice, f.bob)

	_, err := f.chat.AddParticipants(ctx, g.ID, f.bob.ID, []uuid.UUID{f.dave.ID})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	unchanged, err := f.chat.GetConversation(ctx, g.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.alice.ID, f.bob.ID}, unchanged.ParticipantIDs())

	updated, err := f.chat.AddParticipants(ctx, g.ID, f.alice.ID, []uuid.UUID{f.dave.ID, f.bob.ID, f.dave.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.alice.ID, f.bob.ID, f.dave.ID}, updated.ParticipantIDs())
	assert.False(t, updated.IsAdmin(f.dave.ID))

	added := f.bus.ofType(model.EventParticipantsAdded)
	require.Len(t, added, 1)
	assert.Len(t, added[0].Payload.(model.ParticipantsAddedEvent).Participants, 1)

	_, err = f.chat.AddParticipants(ctx, g.ID, f.alice.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	d := f.direct(t, f.alice, f.carol)
	_, err = f.chat.AddParticipants(ctx, d.ID, f.alice.ID, []uuid.UUID{f.dave.ID})
	assert.ErrorIs(t, err, apperror.ErrForbidden, "direct conversations stay two-party")
}

func TestRemoveParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, f.alice, f.bob, f.carol)

	_, err := f.chat.RemoveParticipant(ctx, g.ID, f.bob.ID, f.carol.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := f.chat.RemoveParticipant(ctx, g.ID, f.bob.ID, f.bob.ID)
	require.NoError(t, err, "self-leave is always allowed")
	assert.Equal(t, []uuid.UUID{f.alice.ID, f.carol.ID}, updated.ParticipantIDs())

	updated, err = f.chat.RemoveParticipant(ctx, g.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.alice.ID}, updated.ParticipantIDs())

	_, err = f.chat.RemoveParticipant(ctx, g.ID, f.alice.ID, f.dave.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	removed := f.bus.ofType(model.EventParticipantRemoved)
	assert.Len(t, removed, 4, "conversation room and the removed user's room, twice")
	assert.Equal(t, []uuid.UUID{f.bob.ID, f.carol.ID}, f.bus.evicted)

	_, err = f.chat.ListMessages(ctx, g.ID, f.bob.ID, model.ListOptions{})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	d := f.direct(t, f.alice, f.bob)
	_, err = f.chat.RemoveParticipant(ctx, d.ID, f.alice.ID, f.bob.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}
