// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the per-connection state machine of the
// chunked object transfer protocol.
//
// A [Session] is owned by the goroutine serving its connection. It is
// Idle, Uploading(id) or Closed. NEWID (or ADD) moves it to Uploading
// with a fresh buffer; binary frames append to that buffer; ENDUPLOAD
// with the matching id commits the buffer to the shared
// objectstore.Store and returns to Idle. The buffer is never visible
// to GET, from this or any other connection, until it is committed.
// Closing the connection in any state discards the buffer.
//
// Starting a new upload while one is in progress abandons the earlier
// buffer. A mismatched ENDUPLOAD leaves the upload in place so the
// client can still commit it with the right id.
//
// Every rejected frame gets exactly one ERROR reply and leaves the
// connection open. Only transport failures end [Session.Serve].
//
// With [Config.LegacyShortFrameCommit], binary frames are also accepted
// as commands when no explicit upload is in progress. A binary frame
// prefixed "ADD:" appends its remainder to an upload under a
// server-generated id, and a chunk shorter than
// [Config.LargeMessageThreshold] commits it. This mode exists for
// clients written against the earlier binary-only protocol.
//
// [Server] wraps session creation for transports: it is the handler
// each accepted connection is passed to.
package session
