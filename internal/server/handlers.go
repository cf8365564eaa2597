// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package server

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/motrixlab/motrix/internal/live"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/recommend"
)

// maxEventBytes caps the ingest request body. Tracking payloads are a
// few hundred bytes; anything near this limit is abuse.
const maxEventBytes = 64 * 1024

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, response *apiResponse) {
	response.Timestamp = time.Now().UTC()

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("SERVER: Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("SERVER: Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &apiResponse{
		Status: "error",
		Error:  &apiError{Code: code, Message: message},
	})
}

// handleIngest accepts one event payload. 202 when the event made it
// onto a tier queue; 422 when the pipeline refused it (screened out,
// unmatched, duplicate, or dropped on a full queue); 400 for bodies
// that are not JSON objects.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes))
	if err := dec.Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body must be a JSON object")
		return
	}

	if !s.collector.Collect(r.Context(), payload) {
		respondError(w, http.StatusUnprocessableEntity, "EVENT_REFUSED", "Event was not accepted for processing")
		return
	}

	respondJSON(w, http.StatusAccepted, &apiResponse{
		Status: "accepted",
	})
}

// handleMetrics serves the collection metrics snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &apiResponse{
		Status: "success",
		Data:   s.collector.Metrics(),
	})
}

// recommendationsPayload is the recommendations response body.
type recommendationsPayload struct {
	UserID string           `json:"user_id"`
	Items  []recommend.Item `json:"items"`
}

// handleRecommendations serves the precomputed recommendation list for
// a user. A cache miss is an empty list, not an error; entries appear
// once the learning pipeline refreshes the user.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.recommender == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Recommendations are not enabled")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_USER_ID", "A user id is required")
		return
	}

	items := s.recommender.Recommendations(r.Context(), userID)
	if items == nil {
		items = []recommend.Item{}
	}

	respondJSON(w, http.StatusOK, &apiResponse{
		Status: "success",
		Data:   recommendationsPayload{UserID: userID, Items: items},
	})
}

// handleLiveFeed upgrades the connection and attaches it to the hub.
func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Live feed is not enabled")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      s.checkFeedOrigin,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Err(err).Msg("SERVER: Websocket upgrade failed")
		return
	}

	client := live.NewClient(s.hub, conn)
	s.hub.Register <- client
	client.Start()
}

// checkFeedOrigin admits browser clients from the configured origins.
// Requests without an Origin header are non-browser clients (wscat,
// monitoring scripts) and pass.
func (s *Server) checkFeedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("SERVER: Websocket origin rejected")
	return false
}

// handleHealthLive answers liveness probes: the process is up.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &apiResponse{
		Status: "success",
		Data: map[string]any{
			"alive":  true,
			"uptime": time.Since(s.startTime).Seconds(),
		},
	})
}

// handleHealthReady answers readiness probes: 200 once storage is
// reachable and the collector is accepting, 503 otherwise.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := s.db != nil && s.db.Ping(r.Context()) == nil
	collecting := s.collector.Metrics().Running
	ready := dbConnected && collecting

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	respondJSON(w, code, &apiResponse{
		Status: status,
		Data: map[string]any{
			"database_connected": dbConnected,
			"collecting":         collecting,
			"uptime":             time.Since(s.startTime).Seconds(),
		},
	})
}
