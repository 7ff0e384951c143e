// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// backendFactories lists every Backend implementation. Each test in
// this file runs against all of them.
func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"sqlite": func(t *testing.T) Backend {
			backend, err := OpenSQLiteBackend(filepath.Join(t.TempDir(), "objects.db"), nil)
			if err != nil {
				t.Fatalf("OpenSQLiteBackend: %v", err)
			}
			return backend
		},
		"s3": func(t *testing.T) Backend {
			return NewS3Backend(newFakeS3(), "test-bucket", "objects/")
		},
	}
}

func forEachBackend(t *testing.T, test func(t *testing.T, backend Backend)) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			t.Cleanup(func() { backend.Close() })
			test(t, backend)
		})
	}
}

func testObject(key string, payload []byte) Object {
	return Object{
		Info: Info{
			Key:         key,
			Size:        int64(len(payload)),
			StoredSize:  int64(len(payload)),
			Compression: CompressionNone,
			Digest:      ComputeDigest(payload),
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		},
		Data: payload,
	}
}

func TestBackendPutGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		want := testObject("alpha", []byte("alpha payload"))
		if err := backend.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := backend.Get(ctx, "alpha")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Errorf("Data = %q, want %q", got.Data, want.Data)
		}
		if got.Size != want.Size || got.StoredSize != want.StoredSize {
			t.Errorf("sizes = %d/%d, want %d/%d", got.Size, got.StoredSize, want.Size, want.StoredSize)
		}
		if got.Digest != want.Digest {
			t.Errorf("Digest = %s, want %s", got.Digest, want.Digest)
		}
		if got.Compression != want.Compression {
			t.Errorf("Compression = %s, want %s", got.Compression, want.Compression)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
		}
	})
}

func TestBackendGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		if _, err := backend.Get(context.Background(), "missing"); !IsNotFound(err) {
			t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
		}
	})
}

func TestBackendEmptyObject(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		if err := backend.Put(ctx, testObject("empty", []byte{})); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := backend.Get(ctx, "empty")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Data) != 0 || got.Size != 0 {
			t.Fatalf("empty object came back with %d bytes (Size %d)", len(got.Data), got.Size)
		}
	})
}

func TestBackendOverwrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		if err := backend.Put(ctx, testObject("k", []byte("one"))); err != nil {
			t.Fatal(err)
		}
		if err := backend.Put(ctx, testObject("k", []byte("two"))); err != nil {
			t.Fatal(err)
		}
		got, err := backend.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Data) != "two" {
			t.Fatalf("Get after overwrite = %q, want %q", got.Data, "two")
		}
		keys, err := backend.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(keys, []string{"k"}) {
			t.Fatalf("Keys = %v, want [k]", keys)
		}
	})
}

func TestBackendDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		existed, err := backend.Delete(ctx, "nothing")
		if err != nil || existed {
			t.Fatalf("Delete(nothing) = %v, %v; want false, nil", existed, err)
		}

		if err := backend.Put(ctx, testObject("k", []byte("v"))); err != nil {
			t.Fatal(err)
		}
		existed, err = backend.Delete(ctx, "k")
		if err != nil || !existed {
			t.Fatalf("Delete(k) = %v, %v; want true, nil", existed, err)
		}
		if _, err := backend.Get(ctx, "k"); !IsNotFound(err) {
			t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
		}
	})
}

func TestBackendKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		keys, err := backend.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if keys == nil || len(keys) != 0 {
			t.Fatalf("Keys on empty backend = %#v, want empty non-nil slice", keys)
		}

		for _, key := range []string{"a", "b", "c"} {
			if err := backend.Put(ctx, testObject(key, []byte(key))); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := backend.Delete(ctx, "b"); err != nil {
			t.Fatal(err)
		}

		keys, err = backend.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		slices.Sort(keys)
		if !slices.Equal(keys, []string{"a", "c"}) {
			t.Fatalf("Keys = %v, want [a c]", keys)
		}
	})
}

func TestMemoryBackendInsertionOrder(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	for _, key := range []string{"z", "m", "a"} {
		if err := backend.Put(ctx, testObject(key, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := backend.Put(ctx, testObject("z", []byte("again"))); err != nil {
		t.Fatal(err)
	}
	keys, _ := backend.Keys(ctx)
	if !slices.Equal(keys, []string{"z", "m", "a"}) {
		t.Fatalf("Keys = %v, want insertion order [z m a]", keys)
	}
	if backend.Len() != 3 {
		t.Fatalf("Len = %d, want 3", backend.Len())
	}
}

func TestSQLiteBackendInsertionOrderAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "objects.db")

	backend, err := OpenSQLiteBackend(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"z", "m", "a"} {
		if err := backend.Put(ctx, testObject(key, []byte(key))); err != nil {
			t.Fatal(err)
		}
	}
	if err := backend.Put(ctx, testObject("z", []byte("updated"))); err != nil {
		t.Fatal(err)
	}
	if err := backend.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteBackend(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	keys, err := reopened.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"z", "m", "a"}) {
		t.Fatalf("Keys = %v, want [z m a]", keys)
	}
	object, err := reopened.Get(ctx, "z")
	if err != nil {
		t.Fatal(err)
	}
	if string(object.Data) != "updated" {
		t.Fatalf("Get(z) after reopen = %q", object.Data)
	}
}
