package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/hubtalk/internal/model"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Call signals carry SDP blobs.
	maxMessageSize = 64 * 1024

	leaveBuffer = 16
)

// Client represents a single WebSocket connection
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	leave   chan string         // rooms the server asked this connection to leave
	rooms   map[string]struct{} // guarded by gateway.mu

	UserID uuid.UUID
	Name   string
}

// NewClient creates a new WebSocket client
func NewClient(gateway *Gateway, conn *websocket.Conn, userID uuid.UUID, name string) *Client {
	return &Client{
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, gateway.sendBuffer),
		leave:   make(chan string, leaveBuffer),
		rooms:   make(map[string]struct{}),
		UserID:  userID,
		Name:    name,
	}
}

// MessageHandler is a callback for processing incoming WebSocket messages
type MessageHandler func(client *Client, event model.WSEvent)

// ReadPump pumps messages from the WebSocket connection to the handler.
// Runs in a per-client goroutine; returning unregisters the client.
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		c.gateway.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.log.Warn("websocket read error", zap.String("user_id", c.UserID.String()), zap.Error(err))
			}
			break
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.gateway.SendTo(c, model.EventError, model.ErrorEvent{
				Code:    "validation_error",
				Message: "malformed event envelope",
			})
			continue
		}

		if handler != nil {
			handler(c, event)
		}
	}
}

// WritePump pumps messages from the gateway to the WebSocket connection.
// Each event is written as its own text frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Gateway closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case room := <-c.leave:
			c.gateway.Leave(c, room)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
