// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries protocol frames over concrete connections.
//
// Every transport implements [protocol.Conn], so lib/session and
// lib/client are transport-agnostic:
//
//   - [WebSocketConn] maps text and binary frames onto WebSocket text
//     and binary messages (golang.org/x/net/websocket). [WebSocketHandler]
//     is the server side; [DialWebSocket] the client side.
//   - [StreamConn] carries frames on a byte stream (Unix or TCP socket)
//     as a sequence of self-delimiting CBOR values {kind, data}.
//     [StreamServer] accepts connections; [DialStream] connects.
//   - [Pipe] returns two connected in-memory ends, for tests and for
//     embedding a client and server in one process.
//
// A Conn's ReadFrame and WriteFrame honour their context: a deadline
// becomes the socket deadline, and cancellation interrupts a blocked
// call, which then returns the context's error.
//
// Server-side transports hand each accepted connection to a
// [ConnHandler], normally session.Server.ServeConn.
package transport

import (
	"context"

	"github.com/bureau-foundation/blobstore/lib/protocol"
)

// ConnHandler serves one connection until it ends and closes it.
// remote describes the peer for logging.
type ConnHandler func(ctx context.Context, conn protocol.Conn, remote string)
