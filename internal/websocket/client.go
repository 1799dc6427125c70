// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/metrics"
)

// clientIDCounter gives clients increasing ids so broadcast order is stable.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient wraps conn. conn may be nil in tests that only exercise the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.opts.SendBuffer),
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 {
	return c.id
}

// Serve registers the client and starts its pumps. The client unregisters
// itself when the connection fails or the peer stops answering pings.
func (c *Client) Serve() error {
	sub, err := c.hub.Register(c)
	if err != nil {
		_ = c.conn.Close()
		return err
	}
	go c.writePump()
	go c.readPump(sub)
	return nil
}

// readPump handles client messages and heartbeat deadlines.
func (c *Client) readPump(sub *Subscription) {
	defer func() {
		sub.Cancel()
		_ = c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(opts.PongWait)); err != nil {
		metrics.WSErrors.WithLabelValues("deadline").Inc()
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		// Any client message counts as liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		if isPing(raw) {
			c.queuePong()
		}
	}
}

// isPing accepts {"type":"ping"} and a bare "ping" text frame. Anything else
// is ignored.
func isPing(raw []byte) bool {
	if string(raw) == MessageTypePing {
		return true
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false
	}
	return msg.Type == MessageTypePing
}

// queuePong is best effort. Sending on a buffer the hub already closed
// would panic, so the hub lock guards membership.
func (c *Client) queuePong() {
	pong, err := json.Marshal(Message{Type: MessageTypePong})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- pong:
	default:
	}
}

// writePump writes queued messages and periodic pings.
func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)); err != nil {
				metrics.WSErrors.WithLabelValues("deadline").Inc()
				return
			}
			if !ok {
				// Hub closed the buffer: unregistered, evicted or drained.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)); err != nil {
				metrics.WSErrors.WithLabelValues("deadline").Inc()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
