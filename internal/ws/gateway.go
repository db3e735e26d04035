package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/metrics"
	"github.com/quocanhngo/hubtalk/internal/model"
	"go.uber.org/zap"
)

const defaultSendBuffer = 256

// ConversationRoom is the room of everyone currently viewing a conversation
func ConversationRoom(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// UserRoom is the private room of one user, joined by all of their connections
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Gateway owns the connection table and the room index.
// Delivery is best-effort: an event for a client whose buffer is full is dropped.
type Gateway struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{} // userID -> connections (tabs/devices)
	rooms   map[string]map[*Client]struct{}

	sendBuffer int
	log        *zap.Logger
	metrics    *metrics.Metrics

	// Callback when user comes online/offline
	onStatusChange func(userID uuid.UUID, online bool)
	statusLocks    sync.Map // userID -> *sync.Mutex
}

type Options struct {
	SendBuffer     int
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	OnStatusChange func(userID uuid.UUID, online bool)
}

func NewGateway(opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gateway{
		clients:        make(map[uuid.UUID]map[*Client]struct{}),
		rooms:          make(map[string]map[*Client]struct{}),
		sendBuffer:     opts.SendBuffer,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		onStatusChange: opts.OnStatusChange,
	}
}

// Register adds a connection and joins it to its user room
func (g *Gateway) Register(client *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conns, ok := g.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		g.clients[client.UserID] = conns
		// first connection
		g.notifyStatus(client.UserID)
	}
	conns[client] = struct{}{}
	g.joinLocked(client, UserRoom(client.UserID))
	g.metrics.ConnectionOpened()

	g.log.Info("client connected",
		zap.String("user_id", client.UserID.String()),
		zap.Int("connections", len(conns)))
}

// Unregister removes a connection from every room and closes its send buffer
func (g *Gateway) Unregister(client *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conns, ok := g.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}

	for room := range client.rooms {
		g.leaveLocked(client, room)
	}
	delete(conns, client)
	close(client.send)
	g.metrics.ConnectionClosed()

	if len(conns) == 0 {
		delete(g.clients, client.UserID)
		// last connection
		g.notifyStatus(client.UserID)
	}
	g.log.Info("client disconnected", zap.String("user_id", client.UserID.String()))
}

// notifyStatus reports the user's state as of when the callback runs, one call
// at a time per user, so a quick connect/disconnect cannot end on a stale "online".
func (g *Gateway) notifyStatus(userID uuid.UUID) {
	if g.onStatusChange == nil {
		return
	}
	lock, _ := g.statusLocks.LoadOrStore(userID, &sync.Mutex{})
	go func() {
		mu := lock.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()
		g.onStatusChange(userID, g.IsUserOnline(userID))
	}()
}

// Join adds the connection to a room; only the owning connection calls this
func (g *Gateway) Join(client *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.registeredLocked(client) {
		return
	}
	g.joinLocked(client, room)
}

func (g *Gateway) Leave(client *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(client, room)
}

// EvictFromConversation asks every connection of userID to leave the conversation room.
// Each connection applies the leave itself, from its write pump.
func (g *Gateway) EvictFromConversation(conversationID, userID uuid.UUID) {
	room := ConversationRoom(conversationID)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for client := range g.clients[userID] {
		if _, ok := client.rooms[room]; !ok {
			continue
		}
		select {
		case client.leave <- room:
		default:
			g.log.Warn("client leave queue full",
				zap.String("user_id", userID.String()),
				zap.String("room", room))
		}
	}
}

func (g *Gateway) registeredLocked(client *Client) bool {
	_, ok := g.clients[client.UserID][client]
	return ok
}

func (g *Gateway) joinLocked(client *Client, room string) {
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		g.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (g *Gateway) leaveLocked(client *Client, room string) {
	delete(client.rooms, room)
	members, ok := g.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(g.rooms, room)
	}
}

// EmitToRoom queues an event to every connection in room, skipping connections of excludeUserID
func (g *Gateway) EmitToRoom(room, eventType string, payload interface{}, excludeUserID uuid.UUID) {
	data, ok := g.encode(eventType, payload)
	if !ok {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for client := range g.rooms[room] {
		if excludeUserID != uuid.Nil && client.UserID == excludeUserID {
			continue
		}
		g.deliverLocked(client, eventType, data)
	}
}

// EmitToConversation broadcasts to the conversation room
func (g *Gateway) EmitToConversation(conversationID uuid.UUID, eventType string, payload interface{}, excludeUserID uuid.UUID) {
	g.EmitToRoom(ConversationRoom(conversationID), eventType, payload, excludeUserID)
}

// EmitToUser sends to all connections of one user
func (g *Gateway) EmitToUser(userID uuid.UUID, eventType string, payload interface{}) {
	g.EmitToRoom(UserRoom(userID), eventType, payload, uuid.Nil)
}

// SendTo replies to a single connection
func (g *Gateway) SendTo(client *Client, eventType string, payload interface{}) {
	data, ok := g.encode(eventType, payload)
	if !ok {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.registeredLocked(client) {
		return
	}
	g.deliverLocked(client, eventType, data)
}

func (g *Gateway) encode(eventType string, payload interface{}) ([]byte, bool) {
	data, err := json.Marshal(model.OutboundEvent{Type: eventType, Payload: payload})
	if err != nil {
		g.log.Error("failed to marshal event", zap.String("event", eventType), zap.Error(err))
		return nil, false
	}
	return data, true
}

// deliverLocked must run under at least the read lock so Unregister cannot close send concurrently
func (g *Gateway) deliverLocked(client *Client, eventType string, data []byte) {
	select {
	case client.send <- data:
		g.metrics.EventEmitted(eventType)
	default:
		g.metrics.EventDropped(eventType)
		g.log.Warn("client send buffer full, dropping event",
			zap.String("user_id", client.UserID.String()),
			zap.String("event", eventType))
	}
}

// IsUserOnline checks if a user has any active connections
func (g *Gateway) IsUserOnline(userID uuid.UUID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.clients[userID]
	return ok
}

// RoomSize returns the number of connections in a room
func (g *Gateway) RoomSize(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

// CloseAll disconnects every client, used on shutdown
func (g *Gateway) CloseAll() {
	g.mu.RLock()
	var all []*Client
	for _, conns := range g.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range all {
		g.Unregister(c)
	}
}
