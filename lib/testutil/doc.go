// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by blobstore tests.
//
// [RequireReceive] waits on a channel with a timeout so a hung
// goroutine fails the test instead of stalling the run. [SocketDir]
// returns a short directory for Unix sockets, whose paths are limited
// to 108 bytes. [UniqueID] produces distinct object keys when several
// tests share one store. [RandomBytes] fills payloads for round-trip
// tests.
//
// All helpers call t.Fatalf on failure.
package testutil
