package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/realtime-service/internal/config"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

const (
	defaultSendBuffer   = 256
	defaultPingInterval = 25 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
)

// DisconnectHandler is called once when a client's read loop ends.
type DisconnectHandler func(*Client)

// Client is one authenticated WebSocket connection.
type Client struct {
	ID       string
	Identity *domain.Identity
	Hub      *Hub
	Conn     *websocket.Conn
	// Send is written by the hub loop only and closed by it on removal.
	Send chan []byte

	rooms             map[string]struct{} // owned by the hub loop
	config            config.WebSocketConfig
	logger            zerolog.Logger
	disconnectHandler DisconnectHandler
}

// NewClient creates a client. conn may be nil for clients that are driven
// without a socket.
func NewClient(id string, identity *domain.Identity, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}

	logger := pkglog.L().With().Str(pkglog.FieldConnectionID, id).Logger()
	if identity != nil {
		logger = logger.With().Str(pkglog.FieldUserID, identity.ID).Logger()
	}

	return &Client{
		ID:       id,
		Identity: identity,
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, size),
		rooms:    make(map[string]struct{}),
		config:   cfg,
		logger:   logger,
	}
}

// Logger returns the connection-scoped logger.
func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// ReadPump reads frames and hands them to handler, one at a time, until
// the socket fails. It then runs the disconnect handler and unregisters.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		handler(c, message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
// It exits when the hub closes Send or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
