// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPipe starts a throwaway upgrade server running fn on the server side
// of each connection and returns a dialed client side. Both ends close
// with the test.
func wsPipe(t *testing.T, fn func(server *websocket.Conn)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)

	target := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", target, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// expect fails the test unless ch is signaled within a second.
func expect(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNewClient(t *testing.T) {
	hub := NewHub()
	conn := wsPipe(t, func(*websocket.Conn) {})

	first := NewClient(hub, conn)
	second := NewClient(hub, conn)

	if first.hub != hub || first.conn != conn {
		t.Error("client does not wrap the given hub and connection")
	}
	if got := cap(first.send); got != 256 {
		t.Errorf("send buffer = %d, want 256", got)
	}
	if second.ID() <= first.ID() {
		t.Errorf("ids not monotonic: first=%d second=%d", first.ID(), second.ID())
	}
}

func TestClientConstants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v, want 10s", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("pongWait = %v, want 60s", pongWait)
	}
	if pingPeriod != (pongWait*9)/10 {
		t.Errorf("pingPeriod = %v, want nine tenths of pongWait", pingPeriod)
	}
	if maxMessageSize != 64*1024 {
		t.Errorf("maxMessageSize = %d, want 65536", maxMessageSize)
	}
}

func TestWritePumpDeliversQueuedMessages(t *testing.T) {
	hub := NewHub()
	delivered := make(chan struct{})
	conn := wsPipe(t, func(server *websocket.Conn) {
		var msg Message
		if err := server.ReadJSON(&msg); err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if msg.Type != MessageTypeMetrics {
			t.Errorf("server got type %q, want %q", msg.Type, MessageTypeMetrics)
		}
		close(delivered)
	})

	client := NewClient(hub, conn)
	go client.writePump()
	client.send <- Message{Type: MessageTypeMetrics, Data: map[string]int{"events_per_minute": 12}}

	expect(t, delivered, "the queued frame to reach the server")
}

func TestReadPumpAnswersPing(t *testing.T) {
	hub := runHub(t)
	ponged := make(chan struct{})
	conn := wsPipe(t, func(server *websocket.Conn) {
		if err := server.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("server write: %v", err)
			return
		}
		var reply Message
		if err := server.ReadJSON(&reply); err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if reply.Type == MessageTypePong {
			close(ponged)
		}
	})

	client := NewClient(hub, conn)
	client.Start()

	expect(t, ponged, "a pong reply")
}

func TestReadPumpUnregistersOnClose(t *testing.T) {
	// The hub is deliberately not served; this test consumes Unregister
	// itself so the handoff is observable.
	hub := NewHub()
	conn := wsPipe(t, func(server *websocket.Conn) {
		server.Close()
	})

	client := NewClient(hub, conn)
	go client.readPump()

	select {
	case got := <-hub.Unregister:
		if got != client {
			t.Error("a different client was unregistered")
		}
	case <-time.After(time.Second):
		t.Fatal("readPump never unregistered after the peer closed")
	}
}

func TestWritePumpSendsCloseFrame(t *testing.T) {
	hub := NewHub()
	sawClose := make(chan struct{})
	conn := wsPipe(t, func(server *websocket.Conn) {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				// The pump's goodbye frame carries no status payload.
				if websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
					close(sawClose)
				}
				return
			}
		}
	})

	client := NewClient(hub, conn)
	go client.writePump()
	close(client.send)

	expect(t, sawClose, "the close frame")
}

func TestClientFeedEndToEnd(t *testing.T) {
	hub := runHub(t)
	frames := make(chan Message, 8)
	conn := wsPipe(t, func(server *websocket.Conn) {
		for {
			var msg Message
			if err := server.ReadJSON(&msg); err != nil {
				return
			}
			frames <- msg
		}
	})

	client := NewClient(hub, conn)
	client.Start()
	hub.Register <- client
	waitClients(t, hub, 1)

	hub.BroadcastAccepted(acceptedEvent())

	select {
	case msg := <-frames:
		if msg.Type != MessageTypeEvent {
			t.Fatalf("frame type = %q, want %q", msg.Type, MessageTypeEvent)
		}
		summary, ok := msg.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("frame data is %T over the wire, want an object", msg.Data)
		}
		if summary["event_id"] != "evt-42" {
			t.Errorf("event_id = %v, want evt-42", summary["event_id"])
		}
		if summary["lead_score"] != 87.5 {
			t.Errorf("lead_score = %v, want 87.5", summary["lead_score"])
		}
	case <-time.After(time.Second):
		t.Fatal("no frame arrived on the wire")
	}
}
