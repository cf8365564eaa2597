// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package live streams accepted-event summaries to websocket clients.
//
// Hub owns the client set and fans every broadcast out to all connected
// clients. The collector hands each accepted event to BroadcastAccepted;
// the HTTP layer upgrades GET /api/v1/events/live connections and
// registers the resulting Client with the hub. Broadcasts never block
// producers: a slow client's buffer filling up disconnects that client,
// and a full hub queue drops the message with a warning.
//
// The hub runs as a supervised service. Canceling its serve context
// closes every client and returns, so a supervisor restart never leaks
// connections.
package live
