package realtime

import (
	"encoding/json"
	"time"

	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/gorilla/websocket"
)

// Client is one live socket. listings is owned by the hub run loop.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	viewerID string
	listings map[string]struct{}
}

// readPump forwards viewer commands to the hub until the connection fails
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				utils.Warn("realtime: read error", map[string]any{"viewer_id": c.viewerID, "error": err.Error()})
			}
			return
		}

		var msg model.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = model.ClientMessage{Type: "invalid"}
		}

		select {
		case c.hub.commands <- command{client: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send channel and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
