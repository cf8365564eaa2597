// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package server is the HTTP boundary: event ingest, operational
// endpoints, and the live websocket feed.
//
// Routes:
//
//	POST /api/v1/events                     ingest one event (202 accepted, 422 rejected)
//	GET  /api/v1/metrics                    collection metrics snapshot
//	GET  /api/v1/recommendations/{userID}   precomputed recommendations
//	GET  /api/v1/events/live                websocket feed of accepted events
//	GET  /api/v1/health/live                liveness probe
//	GET  /api/v1/health/ready               readiness probe (storage connectivity)
//	GET  /metrics                           Prometheus exposition
//
// The API group carries request ids, CORS, IP rate limiting (httprate),
// and Prometheus instrumentation. When auth is enabled, a bearer JWT
// (HS256, shared secret) attaches the verified publisher identity to the
// request context; collection rules flagged requires_auth reject events
// that arrive without one. A second, per-publisher token bucket guards
// the ingest route.
package server
