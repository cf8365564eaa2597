// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebServer is the slice of *http.Server the supervisor needs: a
// blocking listen call and a draining stop. internal/server.Server
// satisfies it too.
type WebServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// WebService adapts a WebServer to suture.Service. ListenAndServe runs
// on its own goroutine; canceling the serve context triggers a graceful
// Shutdown bounded by the drain timeout.
//
//	svc := supervisor.NewWebService(srv, 10*time.Second)
//	tree.AddAPIService(svc)
type WebService struct {
	srv   WebServer
	drain time.Duration
}

// NewWebService wraps srv. A drain of zero or less falls back to ten
// seconds, enough for in-flight API requests to finish.
func NewWebService(srv WebServer, drain time.Duration) *WebService {
	if drain <= 0 {
		drain = 10 * time.Second
	}
	return &WebService{srv: srv, drain: drain}
}

// Serve implements suture.Service. It returns ctx.Err() after a clean
// drain, nil if the server closed on its own, and the listen or
// shutdown error otherwise. http.ErrServerClosed is the normal result
// of Shutdown, not a failure.
func (w *WebService) Serve(ctx context.Context) error {
	fail := make(chan error, 1)
	go func() { fail <- w.srv.ListenAndServe() }()

	select {
	case err := <-fail:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	// The serve context is already canceled; draining gets its own
	// deadline.
	grace, cancel := context.WithTimeout(context.Background(), w.drain)
	defer cancel()
	if err := w.srv.Shutdown(grace); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	<-fail
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (w *WebService) String() string {
	return "api-server"
}
