// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// blobstore-service serves the chunked object transfer protocol over
// WebSocket (GET /ws), a Unix socket and a TCP socket, alongside a
// plain HTTP object API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/blobstore/lib/config"
	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/service"
	"github.com/bureau-foundation/blobstore/lib/session"
	"github.com/bureau-foundation/blobstore/lib/version"
	"github.com/bureau-foundation/blobstore/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("blobstore-service", pflag.ContinueOnError)
	var (
		configPath  string
		showVersion bool
	)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("blobstore-service %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := service.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := service.NewLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	server := session.NewServer(store, session.Config{
		ChunkSize:              int(cfg.Session.ChunkSize),
		LegacyShortFrameCommit: cfg.Session.LegacyShortFrameCommit,
		LargeMessageThreshold:  int(cfg.Session.LargeMessageThreshold),
		IdleTimeout:            cfg.Session.IdleTimeout.Std(),
		Logger:                 logger,
	})

	logger.Info("blobstore service starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"backend", cfg.Store.Backend,
		"compression", store.Compression().String(),
		"read_mode", store.ReadMode().String(),
	)

	var listeners []func(context.Context) error
	if cfg.Listen.HTTP != "" {
		httpServer := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Listen.HTTP,
			Handler: newRouter(routerConfig{
				Server:         server,
				MaxMessageSize: int(cfg.Session.MaxMessageSize),
				Logger:         logger,
			}),
			ShutdownTimeout: cfg.Listen.ShutdownTimeout.Std(),
			Logger:          logger,
		})
		listeners = append(listeners, httpServer.Serve)
	}
	if cfg.Listen.Socket != "" {
		socketServer := &transport.StreamServer{
			Network: "unix",
			Address: cfg.Listen.Socket,
			Handler: server.ServeConn,
			Logger:  logger,

			MaxFrameSize: int(cfg.Session.MaxMessageSize),
		}
		listeners = append(listeners, socketServer.Serve)
	}
	if cfg.Listen.TCP != "" {
		tcpServer := &transport.StreamServer{
			Network: "tcp",
			Address: cfg.Listen.TCP,
			Handler: server.ServeConn,
			Logger:  logger,

			MaxFrameSize: int(cfg.Session.MaxMessageSize),
		}
		listeners = append(listeners, tcpServer.Serve)
	}

	if err := service.RunAll(ctx, listeners...); err != nil {
		return err
	}
	logger.Info("blobstore service stopped",
		"accepted_sessions", server.AcceptedSessions(),
	)
	return nil
}

// loadConfig reads the file named by --config, then the one named by
// BLOBSTORE_CONFIG, and falls back to the built-in defaults when
// neither is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	return config.Builtin(), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*objectstore.Store, error) {
	compression, err := objectstore.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return nil, err
	}
	readMode, err := objectstore.ParseReadMode(cfg.Store.ReadMode)
	if err != nil {
		return nil, err
	}

	var backend objectstore.Backend
	switch cfg.Store.Backend {
	case config.BackendMemory:
		backend = objectstore.NewMemoryBackend()
	case config.BackendSQLite:
		backend, err = objectstore.OpenSQLiteBackend(cfg.Store.SQLite.Path, logger)
	case config.BackendS3:
		backend, err = objectstore.OpenS3Backend(ctx, objectstore.S3Options{
			Bucket:   cfg.Store.S3.Bucket,
			Prefix:   cfg.Store.S3.Prefix,
			Region:   cfg.Store.S3.Region,
			Endpoint: cfg.Store.S3.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Store.Backend, err)
	}

	return objectstore.New(backend, objectstore.Options{
		Compression:   compression,
		ReadMode:      readMode,
		MaxObjectSize: int64(cfg.Store.MaxObjectSize),
		Logger:        logger,
	}), nil
}
