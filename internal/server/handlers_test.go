// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/live"
	"github.com/motrixlab/motrix/internal/pipeline"
	"github.com/motrixlab/motrix/internal/recommend"
)

type fakeCollector struct {
	mu       sync.Mutex
	accept   bool
	running  bool
	payloads []map[string]any
	identity string
}

func (f *fakeCollector) Collect(ctx context.Context, payload map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if uid, ok := pipeline.Identity(ctx); ok {
		f.identity = uid
	}
	return f.accept
}

func (f *fakeCollector) Metrics() pipeline.CollectionMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pipeline.CollectionMetrics{
		EventsProcessed: int64(len(f.payloads)),
		Running:         f.running,
		Timestamp:       time.Now().UTC(),
	}
}

func (f *fakeCollector) seenIdentity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

type fakeRecommender struct {
	items map[string][]recommend.Item
}

func (f *fakeRecommender) Recommendations(_ context.Context, userID string) []recommend.Item {
	return f.items[userID]
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

// decodedResponse mirrors the response envelope for assertions.
type decodedResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Error  *apiError      `json:"error"`
}

func decodeResponse(t *testing.T, body []byte) decodedResponse {
	t.Helper()
	var resp decodedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, body)
	}
	return resp
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Collector == nil {
		opts.Collector = &fakeCollector{accept: true, running: true}
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func postEvent(t *testing.T, ts *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/events", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name       string
		accept     bool
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "accepted event returns 202",
			accept:     true,
			body:       `{"user_id":"user_alpha","event_type":"page_view"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "refused event returns 422",
			accept:     false,
			body:       `{"user_id":"","event_type":"page_view"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "EVENT_REFUSED",
		},
		{
			name:       "malformed body returns 400",
			accept:     true,
			body:       `not json at all`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "MALFORMED_BODY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &fakeCollector{accept: tt.accept, running: true}
			s := newTestServer(t, Options{Collector: collector})
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			resp := postEvent(t, ts, tt.body, nil)
			body := readBody(t, resp)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d\n%s", resp.StatusCode, tt.wantStatus, body)
			}
			decoded := decodeResponse(t, body)
			if tt.wantCode != "" {
				if decoded.Error == nil || decoded.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want code %q", decoded.Error, tt.wantCode)
				}
			} else if decoded.Status != "accepted" {
				t.Errorf("status = %q, want accepted", decoded.Status)
			}
		})
	}
}

func TestIngestPassesPayloadThrough(t *testing.T) {
	collector := &fakeCollector{accept: true, running: true}
	s := newTestServer(t, Options{Collector: collector})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postEvent(t, ts, `{"user_id":"user_alpha","event_type":"lead_submit","vehicle_id":"veh-9"}`, nil)
	readBody(t, resp)

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.payloads) != 1 {
		t.Fatalf("collector saw %d payloads, want 1", len(collector.payloads))
	}
	p := collector.payloads[0]
	if p["user_id"] != "user_alpha" || p["event_type"] != "lead_submit" || p["vehicle_id"] != "veh-9" {
		t.Errorf("payload = %v, missing fields", p)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector := &fakeCollector{accept: true, running: true}
	s := newTestServer(t, Options{Collector: collector})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postEvent(t, ts, `{"user_id":"user_alpha","event_type":"page_view"}`, nil)
	readBody(t, resp)

	getResp, err := ts.Client().Get(ts.URL + "/api/v1/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	body := readBody(t, getResp)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}

	decoded := decodeResponse(t, body)
	if decoded.Status != "success" {
		t.Errorf("status = %q, want success", decoded.Status)
	}
	if processed, ok := decoded.Data["events_processed"].(float64); !ok || processed != 1 {
		t.Errorf("events_processed = %v, want 1", decoded.Data["events_processed"])
	}
	if running, ok := decoded.Data["running"].(bool); !ok || !running {
		t.Errorf("running = %v, want true", decoded.Data["running"])
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	rec := &fakeRecommender{items: map[string][]recommend.Item{
		"user_alpha": {
			{VehicleID: "veh-1", Score: 0.9, Reason: recommend.ReasonCoView},
			{VehicleID: "veh-2", Score: 0.4, Reason: recommend.ReasonPopular},
		},
	}}

	t.Run("serves the precomputed list", func(t *testing.T) {
		s := newTestServer(t, Options{Recommender: rec})
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		resp, err := ts.Client().Get(ts.URL + "/api/v1/recommendations/user_alpha")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200\n%s", resp.StatusCode, body)
		}

		decoded := decodeResponse(t, body)
		if decoded.Data["user_id"] != "user_alpha" {
			t.Errorf("user_id = %v, want user_alpha", decoded.Data["user_id"])
		}
		items, ok := decoded.Data["items"].([]any)
		if !ok || len(items) != 2 {
			t.Fatalf("items = %v, want 2 entries", decoded.Data["items"])
		}
		first, _ := items[0].(map[string]any)
		if first["vehicle_id"] != "veh-1" || first["reason"] != "co_view" {
			t.Errorf("first item = %v", first)
		}
	})

	t.Run("cache miss is an empty list", func(t *testing.T) {
		s := newTestServer(t, Options{Recommender: rec})
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		resp, err := ts.Client().Get(ts.URL + "/api/v1/recommendations/user_unknown")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		decoded := decodeResponse(t, body)
		items, ok := decoded.Data["items"].([]any)
		if !ok {
			t.Fatalf("items missing from %v, want an empty array", decoded.Data)
		}
		if len(items) != 0 {
			t.Errorf("items = %v, want empty", items)
		}
	})

	t.Run("unconfigured recommender is 503", func(t *testing.T) {
		s := newTestServer(t, Options{})
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		resp, err := ts.Client().Get(ts.URL + "/api/v1/recommendations/user_alpha")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		readBody(t, resp)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})
}

func TestHealthLive(t *testing.T) {
	s := newTestServer(t, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	decoded := decodeResponse(t, body)
	if alive, ok := decoded.Data["alive"].(bool); !ok || !alive {
		t.Errorf("alive = %v, want true", decoded.Data["alive"])
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		running    bool
		wantStatus int
	}{
		{"ready when storage is up and collecting", &fakePinger{}, true, http.StatusOK},
		{"not ready when storage is down", &fakePinger{err: errors.New("connection refused")}, true, http.StatusServiceUnavailable},
		{"not ready when collector is stopped", &fakePinger{}, false, http.StatusServiceUnavailable},
		{"not ready without a storage handle", nil, true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &fakeCollector{accept: true, running: tt.running}
			s := newTestServer(t, Options{Collector: collector, DB: tt.db})
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			resp, err := ts.Client().Get(ts.URL + "/api/v1/health/ready")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			readBody(t, resp)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestLiveFeedEndpoint(t *testing.T) {
	hub := live.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Serve(ctx) }()

	s := newTestServer(t, Options{Hub: hub})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the client before broadcasting.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.BroadcastJSON("metrics", map[string]int{"events_processed": 3})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg live.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read feed message: %v", err)
	}
	if msg.Type != "metrics" {
		t.Errorf("message type = %q, want metrics", msg.Type)
	}
}

func TestLiveFeedWithoutHub(t *testing.T) {
	s := newTestServer(t, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/v1/events/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestFeedOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header passes", []string{"https://app.example.com"}, "", true},
		{"allowed origin passes", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"wildcard passes any origin", []string{"*"}, "https://elsewhere.example.com", true},
		{"unlisted origin rejected", []string{"https://app.example.com"}, "https://evil.example.com", false},
		{"empty allowlist rejects browsers", nil, "https://app.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{
				Security: &config.SecurityConfig{CORSOrigins: tt.origins},
			})
			r := httptest.NewRequest(http.MethodGet, "/api/v1/events/live", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkFeedOrigin(r); got != tt.want {
				t.Errorf("checkFeedOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
