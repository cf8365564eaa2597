// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/motrixlab/motrix/internal/metrics"
	"github.com/motrixlab/motrix/internal/pipeline"
)

// maxTrackedPublishers bounds the limiter map. Hitting it resets the
// map, which briefly refills every bucket; preferable to unbounded
// growth from spoofed identities.
const maxTrackedPublishers = 10000

// userLimiter enforces a per-publisher token bucket on the ingest path.
// Publishers are keyed by verified identity, anonymous clients by IP.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newUserLimiter builds the limiter; eventsPerSecond <= 0 disables it.
func newUserLimiter(eventsPerSecond float64, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(eventsPerSecond),
		burst:    burst,
	}
}

func (l *userLimiter) allow(key string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) >= maxTrackedPublishers {
		l.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter.Allow()
}

// limitIngest guards the ingest route with the per-publisher bucket.
func (s *Server) limitIngest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pipeline.Identity(r.Context())
		if !ok {
			key = remoteIP(r)
		}
		if !s.ingest.allow(key) {
			metrics.RateLimitRejections.WithLabelValues(routePattern(r)).Inc()
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Event rate exceeded for this publisher")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteIP returns the client IP; RealIP middleware has already folded
// forwarding headers into RemoteAddr.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
