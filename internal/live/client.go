// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package live

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // feed clients only send control frames
)

// clientIDCounter hands out monotonically increasing ids so broadcast
// and close order over the client set is stable.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient wraps an upgraded connection. Call Start to begin pumping;
// the caller registers the client with the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// extendRead pushes the read deadline out by pongWait. Called at pump
// start and from the pong handler.
func (c *Client) extendRead() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// primeWrite arms the write deadline for the next frame.
func (c *Client) primeWrite() error {
	return c.conn.SetWriteDeadline(time.Now().Add(writeWait))
}

// readPump drains the connection. The feed is one-directional; the only
// client message honored is a ping, answered with a pong.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.extendRead(); err != nil {
		logging.Error().Err(err).Msg("LIVE: Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error { return c.extendRead() })

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("LIVE: Unexpected websocket close")
			}
			break
		}

		if msg.Type == MessageTypePing {
			pong := Message{Type: MessageTypePong}
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// writePump pumps hub messages to the connection and keeps it alive
// with protocol pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.primeWrite(); err != nil {
				logging.Error().Err(err).Msg("LIVE: Failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("LIVE: Failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("LIVE: Failed to write message")
				return
			}
			metrics.LiveMessagesSent.Inc()

		case <-ticker.C:
			if err := c.primeWrite(); err != nil {
				logging.Error().Err(err).Msg("LIVE: Failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
