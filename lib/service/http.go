// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer serves an http.Handler on a TCP listener and shuts down
// in two phases. Ordinary requests drain first. Then the base context
// of every request is cancelled, which ends upgraded connections
// (WebSocket sessions) that net/http stops tracking once they are
// hijacked, and Serve waits for their handlers to return.
//
// There are no read or write timeouts: object transfers run for as
// long as the payload takes.
type HTTPServer struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr

	// handlers counts ServeHTTP calls in progress, including those
	// that hijacked their connection.
	handlers sync.WaitGroup
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8080" or
	// ":0" for an OS-assigned port. Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds both shutdown phases together.
	// Defaults to 10 seconds.
	ShutdownTimeout time.Duration

	// Logger is required.
	Logger *slog.Logger
}

// NewHTTPServer creates a server. It does not listen until Serve.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPServer{
		address:         config.Address,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Only valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// serveTracked counts the call for the second shutdown phase.
func (s *HTTPServer) serveTracked(w http.ResponseWriter, r *http.Request) {
	s.handlers.Add(1)
	defer s.handlers.Done()
	s.handler.ServeHTTP(w, r)
}

// Serve listens and serves until ctx is cancelled, then shuts down as
// described on HTTPServer. It returns an error if the listener fails
// or if either phase exceeds the shutdown timeout.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// Request contexts outlive ctx so that draining requests are not
	// interrupted. cancelRequests ends them after the drain.
	requestBase, cancelRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRequests()

	server := &http.Server{
		Handler:           http.HandlerFunc(s.serveTracked),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return requestBase },
	}

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	deadline := time.Now().Add(s.shutdownTimeout)
	shutdownCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("http server shutdown: %w", err)
	}

	cancelRequests()
	upgradedDone := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(upgradedDone)
	}()
	select {
	case <-upgradedDone:
	case <-shutdownCtx.Done():
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http server shutdown: upgraded connections still open after %s", s.shutdownTimeout))
	}

	if shutdownErr != nil {
		s.logger.Error("http server shutdown error", "error", shutdownErr)
		return shutdownErr
	}
	s.logger.Info("http server stopped")
	return nil
}
