package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

const (
	// Time allowed to write a message to the agent
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the agent
	pongWait = 60 * time.Second

	// Send pings to agent with this period (must be less than pongWait)
	pingPeriod = 45 * time.Second

	// Maximum message size allowed from agent
	maxMessageSize = 1024
)

// Client represents one agent's WebSocket connection
type Client struct {
	// Agent ID, fixed at upgrade time from the authenticated identity
	agentID string

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	logger zerolog.Logger

	// done channel to signal client shutdown
	done chan struct{}

	// closeOnce ensures send channel is closed only once
	closeOnce sync.Once
}

// NewClient creates a new Client for an authenticated agent
func NewClient(hub *Hub, conn *websocket.Conn, agentID string, logger zerolog.Logger) *Client {
	return &Client{
		agentID: agentID,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		logger:  logger.With().Str("agent_id", agentID).Logger(),
		done:    make(chan struct{}),
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		close(c.done)
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
				c.logger.Debug().Err(err).Msg("agent websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes incoming messages from the agent
func (c *Client) handleMessage(message []byte) {
	var msgType struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msgType); err != nil {
		c.logger.Debug().Err(err).Msg("failed to parse message type")
		return
	}

	switch msgType.Type {
	case "heartbeat":
		hb := &types.Heartbeat{Type: "heartbeat", AgentID: c.agentID, Timestamp: time.Now()}
		c.hub.heartbeat <- hb

		ack := types.HeartbeatAck{Type: "heartbeat_ack"}
		if data, err := json.Marshal(ack); err == nil {
			c.safeSend(data)
		}

	default:
		c.logger.Debug().Str("type", msgType.Type).Msg("unknown message type")
	}
}

// writePump pumps messages from the hub to the websocket connection
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close safely closes the client's send channel (idempotent)
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		defer func() {
			recover() // absorb panic if channel was already closed
		}()
		close(c.send)
	})
}

// safeSend attempts to send a message, recovering from panic if the channel
// is closed. Never blocks; a full buffer drops the message.
func (c *Client) safeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
