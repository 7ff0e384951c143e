// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/blobstore/lib/protocol"
)

var _ protocol.Conn = (*WebSocketConn)(nil)

// frameCodec sends text frames as WebSocket text messages and binary
// frames as binary messages, and recovers the kind from the opcode on
// receipt.
var frameCodec = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		frame, ok := v.(protocol.Frame)
		if !ok {
			return nil, 0, fmt.Errorf("websocket codec: cannot send %T", v)
		}
		switch frame.Kind {
		case protocol.KindText:
			return frame.Data, websocket.TextFrame, nil
		case protocol.KindBinary:
			return frame.Data, websocket.BinaryFrame, nil
		default:
			return nil, 0, fmt.Errorf("websocket codec: invalid frame kind %d", uint8(frame.Kind))
		}
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		frame, ok := v.(*protocol.Frame)
		if !ok {
			return fmt.Errorf("websocket codec: cannot receive into %T", v)
		}
		switch payloadType {
		case websocket.TextFrame:
			frame.Kind = protocol.KindText
		case websocket.BinaryFrame:
			frame.Kind = protocol.KindBinary
		default:
			return fmt.Errorf("websocket codec: unexpected payload type %d", payloadType)
		}
		frame.Data = data
		return nil
	},
}

// WebSocketConn carries frames over a WebSocket. Reads and writes may
// proceed concurrently.
type WebSocketConn struct {
	ws *websocket.Conn

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an established WebSocket.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// DialWebSocket opens a WebSocket to rawURL (ws:// or wss://).
func DialWebSocket(ctx context.Context, rawURL string) (*WebSocketConn, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing websocket url: %w", err)
	}
	origin := &url.URL{Scheme: "http", Host: target.Host}
	if target.Scheme == "wss" {
		origin.Scheme = "https"
	}

	config, err := websocket.NewConfig(target.String(), origin.String())
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rawURL, err)
	}
	ws.MaxPayloadBytes = protocol.DefaultMaxFrameSize
	return NewWebSocketConn(ws), nil
}

func (c *WebSocketConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	stop := bindDeadline(ctx, c.ws.SetReadDeadline)
	defer stop()

	var frame protocol.Frame
	if err := frameCodec.Receive(c.ws, &frame); err != nil {
		// The oversized message is left unread and skipped by the next
		// Receive, so the connection stays usable.
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			return protocol.Frame{}, fmt.Errorf("%w: websocket message exceeds %d bytes", protocol.ErrFrameTooLarge, c.ws.MaxPayloadBytes)
		}
		return protocol.Frame{}, c.translateError(ctx, err)
	}
	return frame, nil
}

func (c *WebSocketConn) WriteFrame(ctx context.Context, frame protocol.Frame) error {
	stop := bindDeadline(ctx, c.ws.SetWriteDeadline)
	defer stop()

	if err := frameCodec.Send(c.ws, frame); err != nil {
		return c.translateError(ctx, err)
	}
	return nil
}

func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *WebSocketConn) translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if c.closed.Load() {
		return protocol.ErrClosed
	}
	return err
}

// WebSocketHandler upgrades requests to WebSocket connections and
// passes each to handle under the request context. Any Origin is
// accepted.
func WebSocketHandler(handle ConnHandler, maxMessageSize int) http.Handler {
	if maxMessageSize <= 0 {
		maxMessageSize = protocol.DefaultMaxFrameSize
	}
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			ws.MaxPayloadBytes = maxMessageSize
			conn := NewWebSocketConn(ws)
			defer conn.Close()
			request := ws.Request()
			handle(request.Context(), conn, request.RemoteAddr)
		},
	}
}
