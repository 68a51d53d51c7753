package stream

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Send buffer size per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var underlyingPattern = regexp.MustCompile(`^[A-Z][A-Z0-9._]{0,9}$`)

// Client represents one live WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
	groups map[string]bool
	logger *zap.Logger
}

// clientCommand is the inbound message shape. Clients subscribe to extra
// underlyings on an already-open connection instead of dialing again.
type clientCommand struct {
	Action     string `json:"action"` // subscribe | unsubscribe | ping
	Underlying string `json:"underlying,omitempty"`
}

type controlMessage struct {
	Type       string `json:"type"`
	Underlying string `json:"underlying,omitempty"`
	ConnID     string `json:"conn_id,omitempty"`
}

// HandleLive upgrades the request and subscribes the connection to the
// underlying from the URL path.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request, underlying string) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if !underlyingPattern.MatchString(underlying) {
		http.Error(w, "invalid underlying", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
		groups: make(map[string]bool),
		logger: h.logger,
	}

	h.register <- client
	h.JoinGroup(client, underlying)

	client.send <- mustMarshal(controlMessage{Type: "connected", Underlying: underlying, ConnID: client.connID})

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
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
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.logger.Debug("unparseable client command",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	underlying := strings.ToUpper(strings.TrimSpace(cmd.Underlying))

	switch cmd.Action {
	case "subscribe":
		if !underlyingPattern.MatchString(underlying) {
			c.send <- mustMarshal(controlMessage{Type: "error", Underlying: cmd.Underlying})
			return
		}
		c.hub.JoinGroup(c, underlying)
		c.send <- mustMarshal(controlMessage{Type: "subscribed", Underlying: underlying})

	case "unsubscribe":
		c.hub.LeaveGroup(c, underlying)
		c.send <- mustMarshal(controlMessage{Type: "unsubscribed", Underlying: underlying})

	case "ping":
		c.send <- mustMarshal(controlMessage{Type: "pong"})

	default:
		c.logger.Debug("unknown client action",
			zap.String("connID", c.connID),
			zap.String("action", cmd.Action),
		)
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
