package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dclass/pkg/realtime"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; images travel as data URLs
	maxMessageSize = 4 << 20

	// Send buffer size
	sendBufferSize = 256
)

// Client represents one collaborator connection
type Client struct {
	id         string // socket id shown in rosters
	userID     string
	username   string
	diagramID  string // from the upgrade request; payloads may override it
	hub        *Hub
	dispatcher *Dispatcher
	conn       *websocket.Conn
	send       chan []byte
	logger     *zap.Logger

	// ctx scopes the connection's in-flight requests
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by hub.mu
	room     string
	joinedAt time.Time
	lastSeen time.Time
}

// NewClient creates a client for an upgraded connection
func NewClient(id Identity, hub *Hub, dispatcher *Dispatcher, conn *websocket.Conn, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	socketID := uuid.New().String()
	return &Client{
		id:         socketID,
		userID:     id.UserID,
		username:   id.Username,
		diagramID:  id.DiagramID,
		hub:        hub,
		dispatcher: dispatcher,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		logger: logger.With(
			zap.String("connectionID", socketID),
			zap.String("userID", id.UserID),
		),
	}
}

// Identity is what a connection declares about itself on upgrade
type Identity = realtime.Identity

// Start registers the client and begins its read and write pumps
func (c *Client) Start() {
	if !c.hub.Register(c) {
		c.cancel()
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump decodes envelopes from the connection and dispatches them
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			c.logger.Warn("Binary messages not supported")
			continue
		}

		var env realtime.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.hub.SendTo(c, realtime.EventError, "", realtime.ErrorPayload{Error: "malformed message"})
			continue
		}
		c.dispatcher.Dispatch(c, env)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// participant is the roster entry of this connection; the caller holds hub.mu
func (c *Client) participant() realtime.Participant {
	return realtime.Participant{
		SocketID: c.id,
		UserID:   c.userID,
		Username: c.username,
		JoinedAt: c.joinedAt,
	}
}

// ID returns the socket id
func (c *Client) ID() string {
	return c.id
}
