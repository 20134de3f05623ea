package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dclass/pkg/observability"
	"dclass/pkg/realtime"
)

var errBroadcastFull = errors.New("broadcast channel full, message dropped")

// HubConfig tunes presence tracking
type HubConfig struct {
	// HeartbeatInterval is the period of the eviction check
	HeartbeatInterval time.Duration
	// EvictAfter is how long a participant may stay silent before eviction
	EvictAfter time.Duration
}

// DefaultHubConfig evicts after three missed heartbeats
func DefaultHubConfig() HubConfig {
	return HubConfig{
		HeartbeatInterval: realtime.HeartbeatInterval,
		EvictAfter:        3 * realtime.HeartbeatInterval,
	}
}

// Hub maintains active connections grouped into one room per diagram
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool // diagramID -> members
	mu      sync.RWMutex

	unregister chan *Client
	broadcast  chan *roomMessage

	cfg    HubConfig
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics *observability.Collector
}

// roomMessage is an encoded envelope for every member of a room but one
type roomMessage struct {
	diagramID string
	except    string // socket id
	data      []byte
}

// NewHub creates a hub; a nil collector gets a private one
func NewHub(cfg HubConfig, metrics *observability.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewCollector("dclass")
	}
	def := DefaultHubConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = 3 * cfg.HeartbeatInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan *roomMessage, 1000),
		cfg:        cfg,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.unregister:
			h.removeClient(client, "disconnected")

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ticker.C:
			h.evictStale()
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

// Done is closed once the hub stops
func (h *Hub) Done() <-chan struct{} {
	return h.ctx.Done()
}

// removeClient drops a connection and leaves its room; safe to call twice
func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	room := h.leaveLocked(client)
	h.mu.Unlock()

	client.cancel()
	h.metrics.Connections.Dec()
	h.logger.Info("Client unregistered",
		zap.String("connectionID", client.id),
		zap.String("diagramID", room),
		zap.String("reason", reason),
	)
	if room != "" {
		h.broadcastRoster(room)
	}
}

// leaveLocked removes client from its room and returns the room it left
func (h *Hub) leaveLocked(client *Client) string {
	room := client.room
	if room == "" {
		return ""
	}
	client.room = ""
	members := h.rooms[room]
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
		h.metrics.Rooms.Dec()
	}
	return room
}

// Join puts client in the room of diagramID and records a heartbeat.
// It reports whether the room changed; a change rebroadcasts the roster of
// both the old and the new room.
func (h *Hub) Join(client *Client, diagramID string) bool {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return false
	}
	client.lastSeen = h.now()
	if client.room == diagramID {
		h.mu.Unlock()
		return false
	}
	left := h.leaveLocked(client)
	members := h.rooms[diagramID]
	if members == nil {
		members = make(map[*Client]bool)
		h.rooms[diagramID] = members
		h.metrics.Rooms.Inc()
	}
	members[client] = true
	client.room = diagramID
	if client.joinedAt.IsZero() {
		client.joinedAt = client.lastSeen
	}
	h.mu.Unlock()

	h.logger.Debug("Client joined room",
		zap.String("connectionID", client.id),
		zap.String("diagramID", diagramID),
	)
	if left != "" {
		h.broadcastRoster(left)
	}
	h.broadcastRoster(diagramID)
	return true
}

// Touch records a heartbeat, joining the room first when needed
func (h *Hub) Touch(client *Client, diagramID string) {
	h.Join(client, diagramID)
}

// Participants returns the roster of a room in join order
func (h *Hub) Participants(diagramID string) []realtime.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.participantsLocked(diagramID)
}

func (h *Hub) participantsLocked(diagramID string) []realtime.Participant {
	members := h.rooms[diagramID]
	out := make([]realtime.Participant, 0, len(members))
	for c := range members {
		out = append(out, c.participant())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].SocketID < out[j].SocketID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// broadcastRoster sends participants-updated to every member of a room
func (h *Hub) broadcastRoster(diagramID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roster := realtime.ParticipantsUpdated{Participants: h.participantsLocked(diagramID)}
	data, err := encode(realtime.EventParticipantsUpdated, "", roster)
	if err != nil {
		h.logger.Error("Failed to encode roster", zap.Error(err))
		return
	}
	for c := range h.rooms[diagramID] {
		h.deliverLocked(c, data)
	}
}

// SendRoster sends the current roster of the client's room to the client only
func (h *Hub) SendRoster(client *Client, correlationID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roster := realtime.ParticipantsUpdated{Participants: h.participantsLocked(client.room)}
	data, err := encode(realtime.EventParticipantsUpdated, correlationID, roster)
	if err != nil {
		h.logger.Error("Failed to encode roster", zap.Error(err))
		return
	}
	h.deliverLocked(client, data)
}

// SendTo sends one envelope to a single connection
func (h *Hub) SendTo(client *Client, event, correlationID string, payload any) {
	data, err := encode(event, correlationID, payload)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(client, data)
}

// BroadcastToRoom queues an envelope for every member of the diagram's room
// except the connection with socket id except
func (h *Hub) BroadcastToRoom(diagramID, except, event string, payload any) error {
	data, err := encode(event, "", payload)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &roomMessage{diagramID: diagramID, except: except, data: data}:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	case <-time.After(5 * time.Second):
		h.metrics.MessagesDropped.Inc()
		return errBroadcastFull
	}
}

func (h *Hub) broadcastToRoom(message *roomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.rooms[message.diagramID] {
		if c.id == message.except {
			continue
		}
		if h.deliverLocked(c, message.data) {
			sent++
		}
	}
	h.logger.Debug("Broadcast complete",
		zap.String("diagramID", message.diagramID),
		zap.Int("recipients", sent),
	)
}

// deliverLocked queues data on the client's send buffer. A full buffer
// disconnects the client. The caller holds h.mu.
func (h *Hub) deliverLocked(c *Client, data []byte) bool {
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		h.metrics.MessagesSent.Inc()
		return true
	default:
		h.metrics.MessagesDropped.Inc()
		h.logger.Warn("Closing slow client", zap.String("connectionID", c.id))
		go func() {
			h.Unregister(c)
			c.conn.Close()
		}()
		return false
	}
}

// Register adds a new connection to the hub. It runs synchronously
// before the connection's first read, so its first message is never dropped.
// It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	h.logger.Info("Client registered",
		zap.String("connectionID", c.id),
		zap.String("userID", c.userID),
		zap.Int("connections", total),
	)
	return true
}

// Unregister queues a closed connection
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// evictStale drops participants whose last heartbeat is older than EvictAfter
func (h *Hub) evictStale() {
	cutoff := h.now().Add(-h.cfg.EvictAfter)

	h.mu.RLock()
	var stale []*Client
	for c := range h.clients {
		if c.room != "" && c.lastSeen.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.metrics.Evictions.Inc()
		h.removeClient(c, "heartbeat timeout")
	}
	if len(stale) > 0 {
		h.logger.Info("Evicted silent participants", zap.Int("count", len(stale)))
	}
}

// closeAllConnections closes all active connections during shutdown
func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.cancel()
		c.conn.Close()
		delete(h.clients, c)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.metrics.Connections.Set(0)
	h.metrics.Rooms.Set(0)
	h.logger.Info("All connections closed")
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one member
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func encode(event, correlationID string, payload any) ([]byte, error) {
	env, err := realtime.NewEnvelope(event, correlationID, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
