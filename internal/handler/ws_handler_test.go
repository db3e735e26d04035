package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(model.WSEvent{Type: eventType, Payload: raw}))
}

// next reads frames until one of the wanted type arrives
func next(t *testing.T, conn *websocket.Conn, eventType string) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev inbound
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", eventType)
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_ConversationFlow(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	conv := s.createDirect(t)

	teacher := dial(t, srv, s.token(t, s.teacher))
	student := dial(t, srv, s.token(t, s.student))

	send(t, teacher, model.ClientPing, nil)
	next(t, teacher, model.EventPong)

	for _, conn := range []*websocket.Conn{teacher, student} {
		send(t, conn, model.ClientJoinConversation, map[string]uuid.UUID{"conversation_id": conv.ID})
		joined := next(t, conn, model.EventJoinedConversation)
		assert.Contains(t, string(joined.Payload), conv.ID.String())
	}
	assert.Equal(t, 2, s.gateway.RoomSize(ws.ConversationRoom(conv.ID)))

	// legacy typing form reaches everyone but the sender
	send(t, student, model.ClientTyping, map[string]interface{}{"conversation_id": conv.ID, "is_typing": true})
	typing := next(t, teacher, model.EventTypingStatus)
	var status model.TypingStatusEvent
	require.NoError(t, json.Unmarshal(typing.Payload, &status))
	assert.Equal(t, s.student.ID, status.UserID)
	assert.True(t, status.IsTyping)
	assert.Equal(t, model.PresenceTyping, status.Status)

	send(t, student, model.ClientSendMessage, map[string]interface{}{
		"conversation_id": conv.ID,
		"content":         "Can we go over question 3?",
	})
	for _, conn := range []*websocket.Conn{teacher, student} {
		ev := next(t, conn, model.EventNewMessage)
		var msg model.Message
		require.NoError(t, json.Unmarshal(ev.Payload, &msg))
		assert.Equal(t, "Can we go over question 3?", msg.Content)
		assert.Equal(t, s.student.ID, msg.SenderID)
	}

	send(t, teacher, model.ClientMarkRead, map[string]uuid.UUID{"conversation_id": conv.ID})
	read := next(t, student, model.EventConversationRead)
	assert.Contains(t, string(read.Payload), s.teacher.ID.String())
}

func TestWebSocket_ErrorsGoOnlyToOffender(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	conv := s.createDirect(t)

	outsider := dial(t, srv, s.token(t, s.outsider))
	send(t, outsider, model.ClientJoinConversation, map[string]uuid.UUID{"conversation_id": conv.ID})

	ev := next(t, outsider, model.EventError)
	var errEvent model.ErrorEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &errEvent))
	assert.Equal(t, "forbidden", errEvent.Code)
	assert.Equal(t, model.ClientJoinConversation, errEvent.RequestEvent)
	assert.Equal(t, 0, s.gateway.RoomSize(ws.ConversationRoom(conv.ID)))

	send(t, outsider, "shout", map[string]string{})
	ev = next(t, outsider, model.EventError)
	require.NoError(t, json.Unmarshal(ev.Payload, &errEvent))
	assert.Equal(t, "validation_error", errEvent.Code)
	assert.Equal(t, "type", errEvent.Field)

	send(t, outsider, model.ClientSendMessage, map[string]interface{}{
		"conversation_id": conv.ID,
		"kind":            "sticker",
		"content":         "hi",
	})
	ev = next(t, outsider, model.EventError)
	require.NoError(t, json.Unmarshal(ev.Payload, &errEvent))
	assert.Equal(t, "kind", errEvent.Field)
	assert.Equal(t, model.ClientSendMessage, errEvent.RequestEvent)

	send(t, outsider, model.ClientTyping, map[string]interface{}{"conversation_id": conv.ID, "status": "dancing"})
	ev = next(t, outsider, model.EventError)
	require.NoError(t, json.Unmarshal(ev.Payload, &errEvent))
	assert.Equal(t, "status", errEvent.Field)

	send(t, outsider, model.ClientMarkRead, map[string]string{})
	ev = next(t, outsider, model.EventError)
	require.NoError(t, json.Unmarshal(ev.Payload, &errEvent))
	assert.Equal(t, "conversation_id", errEvent.Field)

	// the connection survives bad requests
	send(t, outsider, model.ClientPing, nil)
	next(t, outsider, model.EventPong)
}

func TestWebSocket_CallSignalReachesTargetOnly(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	conv := s.createDirect(t)

	rec := s.do(t, s.teacher, http.MethodPost, "/api/v1/calls", model.InitiateCallRequest{ConversationID: conv.ID, Type: model.CallTypeAudio})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	call := decode[model.CallSession](t, rec)

	teacher := dial(t, srv, s.token(t, s.teacher))
	student := dial(t, srv, s.token(t, s.student))
	// both connections are registered once the server answers a ping
	send(t, student, model.ClientPing, nil)
	next(t, student, model.EventPong)

	send(t, teacher, model.ClientCallSignal, map[string]interface{}{
		"call_id":        call.ID,
		"target_user_id": s.student.ID,
		"signal":         map[string]string{"type": "offer", "sdp": "v=0"},
	})

	ev := next(t, student, model.EventCallSignal)
	var signal model.CallSignalEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &signal))
	assert.Equal(t, call.ID, signal.CallID)
	assert.Equal(t, s.teacher.ID, signal.FromUserID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(signal.Signal))
}

// quiet fails if an event of the given type arrives within the window
func quiet(t *testing.T, conn *websocket.Conn, eventType string, window time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	for {
		var ev inbound
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		assert.NotEqual(t, eventType, ev.Type)
	}
}

func TestWebSocket_RemovedParticipantLeavesRoom(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	rec := s.do(t, s.teacher, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		Type:           model.ConversationTypeGroup,
		Name:           "Lab partners",
		ParticipantIDs: []uuid.UUID{s.student.ID, s.outsider.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decode[model.Conversation](t, rec)

	teacher := dial(t, srv, s.token(t, s.teacher))
	student := dial(t, srv, s.token(t, s.student))
	for _, conn := range []*websocket.Conn{teacher, student} {
		send(t, conn, model.ClientJoinConversation, map[string]uuid.UUID{"conversation_id": group.ID})
		next(t, conn, model.EventJoinedConversation)
	}

	rec = s.do(t, s.teacher, http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%s/participants/%s", group.ID, s.student.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next(t, student, model.EventParticipantRemoved)

	room := ws.ConversationRoom(group.ID)
	assert.Eventually(t, func() bool { return s.gateway.RoomSize(room) == 1 }, 3*time.Second, 10*time.Millisecond)

	send(t, teacher, model.ClientSendMessage, map[string]interface{}{"conversation_id": group.ID, "content": "Groups are final"})
	next(t, teacher, model.EventNewMessage)
	quiet(t, student, model.EventNewMessage, 300*time.Millisecond)
}
