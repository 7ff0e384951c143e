// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the blobstore's single CBOR configuration.
//
// CBOR is the wire format of the stream-socket transport: every frame
// exchanged on a Unix or TCP socket is one self-delimiting CBOR value,
// so the reader needs no additional length prefix. The WebSocket
// transport does not use this package because WebSocket already frames
// messages and distinguishes text from binary.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same frame always produces the same bytes. The decoder imposes no
// size limit of its own; the stream transport bounds each frame by
// limiting the reader beneath it.
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
