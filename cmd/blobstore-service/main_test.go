// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/blobstore/lib/config"
	"github.com/bureau-foundation/blobstore/lib/objectstore"
)

func TestLoadConfigFallsBackToBuiltin(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Store.Backend)
	}
}

func TestLoadConfigFlagWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobstore.yaml")
	if err := os.WriteFile(path, []byte("store:\n  compression: zstd\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv(config.EnvironmentVariable, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.Compression != "zstd" {
		t.Errorf("compression = %q, want zstd", cfg.Store.Compression)
	}
}

func TestOpenStore(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:   "memory",
			mutate: func(cfg *config.Config) {},
		},
		{
			name: "sqlite",
			mutate: func(cfg *config.Config) {
				cfg.Store.Backend = config.BackendSQLite
				cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "objects.db")
				cfg.Store.Compression = "lz4"
			},
		},
		{
			name: "unknown compression",
			mutate: func(cfg *config.Config) {
				cfg.Store.Compression = "brotli"
			},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := config.Default()
			test.mutate(cfg)

			store, err := openStore(ctx, cfg, logger)
			if test.wantErr {
				if err == nil {
					store.Close()
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer store.Close()

			if _, err := store.Put(ctx, "sample", []byte("stored payload")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			object, err := store.Get(ctx, "sample")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(object.Data) != "stored payload" {
				t.Errorf("Get = %q", object.Data)
			}
			if _, err := store.Stat(ctx, "missing"); !objectstore.IsNotFound(err) {
				t.Errorf("Stat(missing) error = %v, want not found", err)
			}
		})
	}
}
