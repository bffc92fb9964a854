package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/interview-scribe/internal/progress"
	"github.com/yegors/interview-scribe/pkg/logger"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

var (
	// ErrClientClosed is returned by Send after the connection went away
	ErrClientClosed = errors.New("websocket client closed")
	// ErrSendBufferFull is returned by Send when the client cannot keep up
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Hub is the part of the progress broadcaster the websocket server needs
type Hub interface {
	Attach(sessionID string, o progress.Observer)
	Detach(sessionID string, o progress.Observer)
	Snapshot(sessionID string) (progress.Event, bool)
}

// Client is one browser connection watching one session
type Client struct {
	conn      *websocket.Conn
	send      chan progress.Event
	server    *Server
	sessionID string
	mu        sync.Mutex
	closed    bool
}

// Server upgrades progress subscriptions to websocket connections
type Server struct {
	hub      Hub
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewServer creates a new WebSocket server
func NewServer(hub Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced by the HTTP layer
			},
		},
		logger: log.Named("web-socket"),
	}
}

// HandleSession upgrades the request and subscribes the connection to the
// progress events of sessionID. The latest known event, if any, is sent first.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan progress.Event, sendBufferSize),
		server:    s,
		sessionID: sessionID,
	}

	s.hub.Attach(sessionID, client)
	if snap, ok := s.hub.Snapshot(sessionID); ok {
		_ = client.Send(snap)
	}

	s.logger.Info("Progress subscriber connected",
		String("session_id", sessionID),
		String("remote_addr", r.RemoteAddr))

	go client.writePump()
	go client.readPump()
}

// Send queues an event for delivery without blocking
func (c *Client) Send(ev progress.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// shutdown marks the client closed and stops the write pump
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump only drains control frames; the channel is server to client.
func (c *Client) readPump() {
	defer func() {
		c.server.hub.Detach(c.sessionID, c)
		c.shutdown()
		c.conn.Close()
		c.server.logger.Info("Progress subscriber disconnected", String("session_id", c.sessionID))
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.server.logger.Error("Failed to marshal event", Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Debug("Write failed", String("session_id", c.sessionID), Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)
