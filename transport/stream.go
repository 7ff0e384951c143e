// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/blobstore/lib/codec"
	"github.com/bureau-foundation/blobstore/lib/protocol"
)

var _ protocol.Conn = (*StreamConn)(nil)

// streamFrame is the CBOR encoding of one frame on a stream socket.
// CBOR values are self-delimiting, so frames need no length prefix.
type streamFrame struct {
	Kind protocol.Kind `cbor:"kind"`
	Data []byte        `cbor:"data"`
}

// frameOverhead covers the CBOR map, keys, kind and byte-string header
// that surround a frame's payload.
const frameOverhead = 32

// errStreamDesynchronized is returned by every read after an oversized
// frame was cut off mid-value.
var errStreamDesynchronized = errors.New("transport: stream unusable after an oversized frame")

// StreamConn carries frames over a net.Conn.
//
// An inbound frame whose payload exceeds the size limit yields
// protocol.ErrFrameTooLarge. If the whole frame fit under the read
// limit the connection stays usable. Otherwise reading stopped partway
// through the value, and later reads fail.
type StreamConn struct {
	conn         net.Conn
	limiter      *frameLimiter
	decoder      *codec.Decoder
	encoder      *codec.Encoder
	maxFrameSize int

	// readErr is sticky once the decoder has lost its place.
	readErr error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps conn. The StreamConn owns conn from here on.
// Inbound frame payloads are limited to maxFrameSize bytes, or
// protocol.DefaultMaxFrameSize when maxFrameSize is zero or less.
func NewStreamConn(conn net.Conn, maxFrameSize int) *StreamConn {
	if maxFrameSize <= 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	limiter := &frameLimiter{reader: conn}
	return &StreamConn{
		conn:         conn,
		limiter:      limiter,
		decoder:      codec.NewDecoder(limiter),
		encoder:      codec.NewEncoder(conn),
		maxFrameSize: maxFrameSize,
	}
}

// DialStream connects to a StreamServer. network is "unix" or "tcp".
func DialStream(ctx context.Context, network, address string) (*StreamConn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s %s: %w", network, address, err)
	}
	return NewStreamConn(conn, 0), nil
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *StreamConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	if c.readErr != nil {
		return protocol.Frame{}, c.readErr
	}
	stop := bindDeadline(ctx, c.conn.SetReadDeadline)
	defer stop()

	// Bytes the decoder consumed so far mark where this frame starts
	// in the stream; nothing past start+limit is read from conn.
	c.limiter.limit = int64(c.decoder.NumBytesRead()) + int64(c.maxFrameSize) + frameOverhead

	var wire streamFrame
	if err := c.decoder.Decode(&wire); err != nil {
		if errors.Is(err, errFrameLimit) {
			c.readErr = errStreamDesynchronized
			return protocol.Frame{}, fmt.Errorf("%w: stream frame exceeds %d bytes", protocol.ErrFrameTooLarge, c.maxFrameSize)
		}
		return protocol.Frame{}, c.translateError(ctx, err)
	}
	if len(wire.Data) > c.maxFrameSize {
		return protocol.Frame{}, fmt.Errorf("%w: stream frame of %d bytes exceeds %d", protocol.ErrFrameTooLarge, len(wire.Data), c.maxFrameSize)
	}
	if wire.Kind != protocol.KindText && wire.Kind != protocol.KindBinary {
		return protocol.Frame{}, fmt.Errorf("stream frame has invalid kind %d", uint8(wire.Kind))
	}
	return protocol.Frame{Kind: wire.Kind, Data: wire.Data}, nil
}

func (c *StreamConn) WriteFrame(ctx context.Context, frame protocol.Frame) error {
	stop := bindDeadline(ctx, c.conn.SetWriteDeadline)
	defer stop()

	if err := c.encoder.Encode(streamFrame{Kind: frame.Kind, Data: frame.Data}); err != nil {
		return c.translateError(ctx, err)
	}
	return nil
}

func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

var errFrameLimit = errors.New("transport: frame read limit reached")

// frameLimiter counts the bytes read from the connection and refuses
// to read past limit, an absolute offset in the stream.
type frameLimiter struct {
	reader io.Reader
	read   int64
	limit  int64
}

func (l *frameLimiter) Read(p []byte) (int, error) {
	remaining := l.limit - l.read
	if remaining <= 0 {
		return 0, errFrameLimit
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.reader.Read(p)
	l.read += int64(n)
	return n, err
}

// translateError reports a context error in place of the deadline
// error it caused, and ErrClosed after a local Close.
func (c *StreamConn) translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if c.closed.Load() {
		return protocol.ErrClosed
	}
	return err
}

// bindDeadline applies ctx's deadline through setDeadline and arranges
// for cancellation to interrupt a blocked call. The returned function
// must be called when the call completes.
func bindDeadline(ctx context.Context, setDeadline func(time.Time) error) func() {
	deadline, _ := ctx.Deadline()
	setDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		setDeadline(time.Now())
	})
	return func() { stop() }
}

// StreamServer accepts stream-socket connections and hands each to
// Handler on its own goroutine.
type StreamServer struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is the socket path or host:port. For Unix sockets a
	// stale socket file is removed before listening and the file is
	// removed again on return.
	Address string

	Handler ConnHandler
	Logger  *slog.Logger

	// MaxFrameSize bounds inbound frame payloads. Zero means
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize int

	ready    chan struct{}
	initOnce sync.Once
	addr     net.Addr

	activeConnections sync.WaitGroup
}

func (s *StreamServer) init() {
	s.initOnce.Do(func() {
		s.ready = make(chan struct{})
	})
}

// Ready is closed once the listener is bound.
func (s *StreamServer) Ready() <-chan struct{} {
	s.init()
	return s.ready
}

// Addr returns the bound address. Valid after Ready is closed.
func (s *StreamServer) Addr() net.Addr {
	return s.addr
}

// Serve accepts connections until ctx is cancelled, then waits for
// active connections to finish. Handlers receive ctx, so cancelling it
// also ends their sessions.
func (s *StreamServer) Serve(ctx context.Context) error {
	s.init()
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if s.Network == "unix" {
		if err := os.Remove(s.Address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket %s: %w", s.Address, err)
		}
	}

	var listenConfig net.ListenConfig
	listener, err := listenConfig.Listen(ctx, s.Network, s.Address)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.Network, s.Address, err)
	}
	defer func() {
		listener.Close()
		if s.Network == "unix" {
			os.Remove(s.Address)
		}
	}()

	s.addr = listener.Addr()
	close(s.ready)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("stream server listening", "network", s.Network, "address", s.addr.String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			streamConn := NewStreamConn(conn, s.MaxFrameSize)
			defer streamConn.Close()
			s.Handler(ctx, streamConn, remoteString(conn))
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// remoteString describes the peer of conn. Unix socket peers are
// usually unnamed.
func remoteString(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil || addr.String() == "" {
		return conn.LocalAddr().Network()
	}
	return addr.String()
}
