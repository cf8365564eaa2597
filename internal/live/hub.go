// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package live

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// Message types for the live feed.
const (
	MessageTypeEvent   = "event"
	MessageTypeMetrics = "metrics"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

// Message is one websocket frame payload.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventSummary is the accepted-event shape broadcast to feed clients.
// It carries the classification outcome, not the raw payload.
type EventSummary struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Priority  string    `json:"priority"`
	LeadScore float64   `json:"lead_score"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains the set of active clients and fans broadcasts out to
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until the context is canceled, then closes every
// client and returns ctx.Err(). Implements suture.Service.
//
// Selection is priority ordered: shutdown first, then client lifecycle,
// then broadcasts, so client state is settled before a message fans out
// and a shutdown is never starved by a busy feed.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String implements fmt.Stringer for supervision logs.
func (h *Hub) String() string {
	return "live-feed-hub"
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("LIVE: Client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("LIVE: Client disconnected")
}

// shutdown closes all clients and logs the reason. Context cancellation
// is expected behavior, so it is not logged as an error.
func (h *Hub) shutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	// A deadline here may mean a hung operation upstream; a plain cancel
	// is the normal SIGTERM path through the supervisor.
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}

	logging.Info().
		Str("component", "live-feed-hub").
		Str("reason", reason).
		Int("clients_closed", clientCount).
		Msg("LIVE: Hub stopped")
}

// snapshot returns the clients in id order. Caller holds h.mu.
func (h *Hub) snapshot() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// broadcastToClients sends a message to every connected client. Clients
// iterate in id order so delivery order is stable. A client whose send
// buffer is full is dropped on the spot.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped int
	for _, client := range h.snapshot() {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			dropped++
		}
	}
	if dropped > 0 {
		metrics.LiveClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped_clients", dropped).Msg("LIVE: Disconnected slow clients")
	}
}

// closeAllClients closes every connected client in id order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.snapshot() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.LiveClients.Set(0)
}

// BroadcastAccepted queues an accepted event's summary for the feed.
// Never blocks; a full hub queue drops the message. Satisfies the
// collector's broadcaster contract.
func (h *Hub) BroadcastAccepted(ev *behavior.Event) {
	if ev == nil {
		return
	}
	message := Message{
		Type: MessageTypeEvent,
		Data: EventSummary{
			EventID:   ev.ID,
			EventType: ev.EventType,
			UserID:    ev.UserID,
			VehicleID: ev.VehicleID,
			Priority:  string(ev.Priority),
			LeadScore: ev.LeadScore,
			Timestamp: ev.Timestamp,
		},
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("event_id", ev.ID).Msg("LIVE: Broadcast queue full, dropping event summary")
	}
}

// BroadcastJSON queues an arbitrary typed payload for the feed. The
// metrics loop uses this for periodic collection snapshots.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("LIVE: Broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
