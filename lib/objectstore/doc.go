// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore holds committed binary objects keyed by string
// id.
//
// A [Store] is shared by every session and transport in a process. It
// computes a BLAKE3 digest of each payload, optionally compresses it
// with the deployment's [Compression] scheme, and hands the result to
// a [Backend] for persistence. Each backend operation is atomic on its
// own: a concurrent reader observes an object entirely before or
// entirely after a write, and Keys returns a consistent snapshot.
// Store adds no lock of its own, so operations on unrelated keys never
// serialize behind one another.
//
// Three backends are provided:
//
//   - [MemoryBackend]: a mutex-guarded map, lost on restart.
//   - [SQLiteBackend]: a single SQLite table in WAL mode through
//     lib/sqlitepool.
//   - [S3Backend]: one S3 object per key, with metadata carried in
//     user metadata headers.
//
// The read mode is fixed per deployment. [ReadDecompress] returns the
// canonical payload; [ReadPassthrough] returns the stored encoding so
// clients that know the scheme can decompress themselves. Because the
// configured scheme is always applied (never "compress only if
// smaller"), passthrough bytes are unambiguous.
package objectstore
