// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/blobstore/lib/sqlitepool"
)

func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  2,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestWALMode(t *testing.T) {
	pool := openTestPool(t, nil)

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}
}

func TestOnConnectRunsPerConnection(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return sqlitex.ExecuteTransient(conn, "CREATE TABLE IF NOT EXISTS t (x INTEGER)", nil)
	})

	ctx := context.Background()
	first, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	second, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	pool.Put(first)
	pool.Put(second)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("OnConnect called %d times, want 2", calls)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open with empty path should fail")
	}
}
