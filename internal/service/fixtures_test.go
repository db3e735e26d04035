package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/presence"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/internal/testutil"
	"gorm.io/gorm"
)

type emitted struct {
	Room    string
	Type    string
	Payload interface{}
	Exclude uuid.UUID
}

// recorder is an in-memory Broadcaster
type recorder struct {
	mu      sync.Mutex
	events  []emitted
	online  map[uuid.UUID]bool
	evicted []uuid.UUID
}

func newRecorder() *recorder {
	return &recorder{online: map[uuid.UUID]bool{}}
}

func (r *recorder) EmitToConversation(id uuid.UUID, eventType string, payload interface{}, exclude uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{"conversation:" + id.String(), eventType, payload, exclude})
}

func (r *recorder) EmitToUser(id uuid.UUID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{"user:" + id.String(), eventType, payload, uuid.Nil})
}

func (r *recorder) EvictFromConversation(conversationID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, userID)
}

func (r *recorder) IsUserOnline(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[id]
}

func (r *recorder) ofType(eventType string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// fakeNotifier records push targets
type fakeNotifier struct {
	mu   sync.Mutex
	sent []uuid.UUID
}

func (n *fakeNotifier) SendMessageNotification(_ context.Context, receiverID uuid.UUID, _ *model.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, receiverID)
	return nil
}

func (n *fakeNotifier) targets() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.sent...)
}

// manualClock advances only when told to
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db       *gorm.DB
	bus      *recorder
	notifier *fakeNotifier
	clock    *manualClock

	chat     *ChatService
	calls    *CallService
	presence *PresenceService
	users    *UserService

	alice, bob, carol, dave *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	bus := newRecorder()
	notifier := &fakeNotifier{}
	clock := &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)

	f := &fixture{
		db:       db,
		bus:      bus,
		notifier: notifier,
		clock:    clock,
		chat:     NewChatService(convRepo, msgRepo, userRepo, bus, notifier, nil),
		calls:    NewCallService(callRepo, convRepo, bus),
		presence: NewPresenceService(presence.NewMemoryStore(presence.DefaultStaleAfter), convRepo, bus),
		users:    NewUserService(userRepo, nil),
		alice:    testutil.CreateUser(t, db, "alice", model.UserRoleTeacher),
		bob:      testutil.CreateUser(t, db, "bob", model.UserRoleStudent),
		carol:    testutil.CreateUser(t, db, "carol", model.UserRoleStudent),
		dave:     testutil.CreateUser(t, db, "dave", model.UserRoleStudent),
	}
	f.chat.now = f.tick
	f.calls.now = f.tick
	f.presence.now = clock.Now
	return f
}

// tick advances the clock a little on every read so timestamps are strictly increasing
func (f *fixture) tick() time.Time {
	f.clock.Advance(time.Millisecond)
	return f.clock.Now()
}

func (f *fixture) direct(t *testing.T, a, b *model.User) *model.Conversation {
	t.Helper()
	conv, _, err := f.chat.CreateConversation(context.Background(), a.ID, model.CreateConversationRequest{
		Type:           model.ConversationTypeDirect,
		ParticipantIDs: []uuid.UUID{b.ID},
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	return conv
}

func (f *fixture) group(t *testing.T, admin *model.User, members ...*model.User) *model.Conversation {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	conv, _, err := f.chat.CreateConversation(context.Background(), admin.ID, model.CreateConversationRequest{
		Type:           model.ConversationTypeGroup,
		Name:           "Biology study group",
		ParticipantIDs: ids,
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv
}

func (f *fixture) say(t *testing.T, conv *model.Conversation, from *model.User, content string) *model.Message {
	t.Helper()
	msg, err := f.chat.SendMessage(context.Background(), conv.ID, from.ID, model.SendMessageRequest{Content: content})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return msg
}
