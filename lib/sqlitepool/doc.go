// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a pool of SQLite connections with the
// pragmas the blobstore's durable backend relies on: WAL journaling so
// readers never block behind the single writer, a busy timeout so
// concurrent commits queue instead of failing, and a bounded page
// cache.
//
// The pool wraps zombiezen's sqlitex.Pool. Callers Take a connection,
// run statements with sqlitex.Execute, and Put it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
