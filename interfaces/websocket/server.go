// Package websocket is the collaboration server side of the realtime protocol:
// rooms per diagram, presence, and asynchronous invite and generation requests.
package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dclass/pkg/realtime"
)

// Server upgrades HTTP requests into collaborator connections
type Server struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	config     *ServerConfig
	logger     *zap.Logger
}

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
	MaxConnections  int
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
		MaxConnections:  10000,
	}
}

// NewServer creates a new WebSocket server
func NewServer(hub *Hub, dispatcher *Dispatcher, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config: config,
		logger: logger,
	}
}

// HandleWebSocket upgrades the request. The query carries diagramId, and
// optionally userId and username; anonymous guests are allowed.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.hub.ConnectionCount() >= s.config.MaxConnections {
		s.logger.Warn("Connection limit reached",
			zap.Int("maxConnections", s.config.MaxConnections),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	id := realtime.Identity{
		DiagramID: strings.TrimSpace(q.Get("diagramId")),
		UserID:    strings.TrimSpace(q.Get("userId")),
		Username:  strings.TrimSpace(q.Get("username")),
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(id, s.hub, s.dispatcher, conn, s.logger)
	client.Start()

	s.logger.Info("New WebSocket connection established",
		zap.String("connectionID", client.ID()),
		zap.String("diagramID", id.DiagramID),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *Hub {
	return s.hub
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || set[origin]
	}
}
