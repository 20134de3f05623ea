package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size accepted from the server; image results can be large
	maxMessageSize = 4 * 1024 * 1024
)

// Identity is what a client tells the room about itself on connect
type Identity struct {
	DiagramID string
	UserID    string
	Username  string
}

// Conn is one established channel to the collaboration server
type Conn interface {
	ReadEnvelope() (Envelope, error)
	WriteEnvelope(Envelope) error
	Close() error
}

// Dialer opens channels to the collaboration server
type Dialer interface {
	Dial(ctx context.Context, id Identity) (Conn, error)
}

// WSDialer dials the server over a websocket
type WSDialer struct {
	URL    string
	Header http.Header
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for the given ws:// or wss:// endpoint
func NewWSDialer(endpoint string) *WSDialer {
	return &WSDialer{
		URL: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Dial connects and passes the identity as query parameters
func (d *WSDialer) Dial(ctx context.Context, id Identity) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("diagramId", id.DiagramID)
	if id.UserID != "" {
		q.Set("userId", id.UserID)
	}
	if id.Username != "" {
		q.Set("username", id.Username)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Host, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) ReadEnvelope() (Envelope, error) {
	var env Envelope
	err := c.conn.ReadJSON(&env)
	return env, err
}

func (c *wsConn) WriteEnvelope(env Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}
