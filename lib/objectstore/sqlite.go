// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/blobstore/lib/sqlitepool"
)

// sqliteSchema creates the objects table. seq records first-insertion
// order for Keys; an overwrite keeps the existing seq. data is nullable
// because SQLite binds a zero-length Go slice as NULL.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS objects (
	key         TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	data        BLOB,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	digest      BLOB NOT NULL,
	created_at  INTEGER NOT NULL
)`

// SQLiteBackend persists objects in a single SQLite table. Each
// operation is one statement, so SQLite's own locking provides the
// per-operation atomicity Backend requires; WAL mode lets Get and Keys
// run alongside a writer.
type SQLiteBackend struct {
	pool *sqlitepool.Pool
}

// OpenSQLiteBackend opens (creating if needed) the database at path.
func OpenSQLiteBackend(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{pool: pool}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, object Object) error {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO objects (key, seq, data, compression, size, digest, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM objects), ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     data = excluded.data,
		     compression = excluded.compression,
		     size = excluded.size,
		     digest = excluded.digest,
		     created_at = excluded.created_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				object.Key,
				object.Data,
				int64(object.Compression),
				object.Size,
				object.Digest[:],
				object.CreatedAt.UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("sqlite backend: put %s: %w", object.Key, err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (Object, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return Object{}, err
	}
	defer b.pool.Put(conn)

	var (
		object Object
		found  bool
	)
	err = sqlitex.Execute(conn,
		"SELECT data, compression, size, digest, created_at FROM objects WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				object.Key = key
				object.Data = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, object.Data)
				object.StoredSize = int64(len(object.Data))
				object.Compression = Compression(stmt.ColumnInt64(1))
				object.Size = stmt.ColumnInt64(2)
				stmt.ColumnBytes(3, object.Digest[:])
				object.CreatedAt = time.Unix(0, stmt.ColumnInt64(4)).UTC()
				return nil
			},
		})
	if err != nil {
		return Object{}, fmt.Errorf("sqlite backend: get %s: %w", key, err)
	}
	if !found {
		return Object{}, ErrNotFound
	}
	return object, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) (bool, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM objects WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
	})
	if err != nil {
		return false, fmt.Errorf("sqlite backend: delete %s: %w", key, err)
	}
	return conn.Changes() > 0, nil
}

func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Put(conn)

	keys := []string{}
	err = sqlitex.Execute(conn, "SELECT key FROM objects ORDER BY seq", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			keys = append(keys, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: keys: %w", err)
	}
	return keys, nil
}

func (b *SQLiteBackend) Close() error {
	return b.pool.Close()
}
