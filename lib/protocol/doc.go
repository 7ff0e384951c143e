// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the frame vocabulary of the chunked object
// transfer protocol.
//
// A connection carries discrete frames, each either text or binary;
// the distinction comes from the transport (a WebSocket opcode, a CBOR
// field) and is never inferred from content. Text frames are control
// frames of the form VERB or VERB:<argument>:
//
//	client → server                 server → client
//	NEWID:<id>                      READY:<id>
//	ADD[:<id>]                      READY:<id>
//	(binary frames)                 (none)
//	ENDUPLOAD:<id>                  ADDED:<id>
//	ABORT:<id>                      ABORTED:<id>
//	GET:<id>                        (binary frames) END:<id>
//	DEL:<id>                        DELETED:<id>
//	LIST                            LIST:<id>,<id>,...
//	STAT:<id>                       STAT:<id>,<size>,<compression>,<digest>,<created>
//	                                ERROR:<code>
//
// Binary frames append to the upload in progress. Every control frame
// produces exactly one reply, except GET, whose reply is zero or more
// binary chunks followed by END (or a single ERROR).
//
// [Conn] is the transport abstraction consumed by lib/session and
// lib/client; package transport provides WebSocket, stream-socket and
// in-memory implementations.
package protocol
