// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/protocol"
)

// Server runs a Session for each connection handed to ServeConn. All
// sessions share one store. Safe for concurrent use.
type Server struct {
	store  *objectstore.Store
	config Config
	logger *slog.Logger

	nextID   atomic.Uint64
	active   atomic.Int64
	accepted atomic.Uint64
}

// NewServer returns a Server whose sessions use store and config.
func NewServer(store *objectstore.Store, config Config) *Server {
	config = config.withDefaults()
	return &Server{store: store, config: config, logger: config.Logger}
}

// Store returns the shared object store.
func (s *Server) Store() *objectstore.Store { return s.store }

// ActiveSessions returns the number of connections currently served.
func (s *Server) ActiveSessions() int64 { return s.active.Load() }

// AcceptedSessions returns the number of connections served since
// the server was created.
func (s *Server) AcceptedSessions() uint64 { return s.accepted.Load() }

// ServeConn runs a session on conn until it ends. remote describes the
// peer for logging and may be empty. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn protocol.Conn, remote string) {
	connectionID := s.nextID.Add(1)
	s.accepted.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	logger := s.logger.With("connection_id", connectionID)
	if remote != "" {
		logger = logger.With("remote", remote)
	}
	config := s.config
	config.Logger = logger

	logger.Info("session started")
	err := New(s.store, conn, config).Serve(ctx)
	switch {
	case err == nil:
		logger.Info("session ended")
	case errors.Is(err, ErrIdleTimeout):
		logger.Info("session ended", "reason", "idle timeout", "idle_timeout", s.config.IdleTimeout)
	default:
		logger.Warn("session ended with error", "error", err)
	}
}
