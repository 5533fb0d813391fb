package notify

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	// A single create can fan out several eviction broadcasts at once,
	// so the buffer absorbs a burst before the drop policy kicks in.
	sendBufferSize = 32
	pingInterval   = 30 * time.Second
)

// Client is one connected GUI panel. Panels only listen; inbound frames
// are read and discarded to keep the close handshake working.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until it closes, keeping the client
// registered for broadcasts while it lives.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			if ws.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.hub.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
	}
}

// writeLoop drains the send channel onto the wire and pings on idle to
// detect stale panels.
func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel — connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				c.hub.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
