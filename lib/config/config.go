// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/protocol"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "BLOBSTORE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config is the service configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Listen  ListenConfig  `yaml:"listen"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Listen  *ListenConfig  `yaml:"listen,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// ListenConfig configures where the service accepts connections. An
// empty address disables that listener; at least one must be set.
type ListenConfig struct {
	// HTTP is the host:port of the HTTP server, which serves the
	// WebSocket endpoint at /ws alongside the REST routes.
	// Default: 127.0.0.1:8080
	HTTP string `yaml:"http"`

	// Socket is a Unix socket path for the stream transport.
	// Default: empty (disabled)
	Socket string `yaml:"socket"`

	// TCP is a host:port for the stream transport.
	// Default: empty (disabled)
	TCP string `yaml:"tcp"`

	// ShutdownTimeout bounds how long the HTTP server waits for
	// in-flight requests on shutdown.
	// Default: 10s
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StoreConfig configures the object store.
type StoreConfig struct {
	// Backend is "memory", "sqlite" or "s3".
	// Default: memory
	Backend string `yaml:"backend"`

	// Compression is the scheme applied to every stored object: none,
	// deflate-raw, zlib, zstd or lz4. Fixed for the lifetime of the
	// data; changing it does not re-encode existing objects.
	// Default: none
	Compression string `yaml:"compression"`

	// ReadMode is "decompress" (GET returns canonical bytes) or
	// "passthrough" (GET returns stored bytes).
	// Default: decompress
	ReadMode string `yaml:"read_mode"`

	// MaxObjectSize rejects larger uploads. Zero means no limit.
	// Default: 1GiB
	MaxObjectSize ByteSize `yaml:"max_object_size"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	S3     S3Config     `yaml:"s3"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: ${BLOBSTORE_DATA_DIR:-/var/lib/blobstore}/objects.db
	Path string `yaml:"path"`
}

// S3Config configures the s3 backend. Credentials come from the
// standard AWS chain (environment, shared config, instance role).
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// SessionConfig configures per-connection protocol behavior.
type SessionConfig struct {
	// ChunkSize is the size of binary frames in GET replies.
	// Default: 256KiB
	ChunkSize ByteSize `yaml:"chunk_size"`

	// IdleTimeout closes connections with no traffic for this long.
	// Zero disables it.
	// Default: 5m
	IdleTimeout Duration `yaml:"idle_timeout"`

	// LegacyShortFrameCommit accepts binary "ADD:" upload frames and
	// binary commands from clients of the older binary-only protocol.
	// Default: false
	LegacyShortFrameCommit bool `yaml:"legacy_short_frame_commit"`

	// LargeMessageThreshold is the legacy chunk size below which an
	// ADD: frame ends its upload.
	// Default: 256KiB
	LargeMessageThreshold ByteSize `yaml:"large_message_threshold"`

	// MaxMessageSize bounds a single inbound frame on every transport:
	// a WebSocket message or a stream-socket frame. Zero means 64MiB.
	// Default: 64MiB
	MaxMessageSize ByteSize `yaml:"max_message_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration, used as the base before
// loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			HTTP:            "127.0.0.1:8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Backend:       BackendMemory,
			Compression:   "none",
			ReadMode:      "decompress",
			MaxObjectSize: 1 << 30,
			SQLite: SQLiteConfig{
				Path: "${BLOBSTORE_DATA_DIR:-/var/lib/blobstore}/objects.db",
			},
		},
		Session: SessionConfig{
			ChunkSize:             256 * 1024,
			IdleTimeout:           Duration(5 * time.Minute),
			LargeMessageThreshold: 256 * 1024,
			MaxMessageSize:        64 * 1024 * 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by BLOBSTORE_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your blobstore.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// Builtin returns the defaults with variables expanded, for running
// without a config file.
func Builtin() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

// LoadFile loads configuration from a specific file path, applies the
// matching environment section and expands variables in paths. The
// result is not validated; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile decodes one file over the current config. JSON is a subset
// of YAML, so .json and .jsonc files go through the same decoder once
// comments are stripped.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
// Empty strings and zero sizes in an override section leave the base
// value alone. Booleans are always applied when their section is
// present.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		overrideString(&c.Listen.HTTP, overrides.Listen.HTTP)
		overrideString(&c.Listen.Socket, overrides.Listen.Socket)
		overrideString(&c.Listen.TCP, overrides.Listen.TCP)
		overrideNonZero(&c.Listen.ShutdownTimeout, overrides.Listen.ShutdownTimeout)
	}

	if overrides.Store != nil {
		overrideString(&c.Store.Backend, overrides.Store.Backend)
		overrideString(&c.Store.Compression, overrides.Store.Compression)
		overrideString(&c.Store.ReadMode, overrides.Store.ReadMode)
		overrideNonZero(&c.Store.MaxObjectSize, overrides.Store.MaxObjectSize)
		overrideString(&c.Store.SQLite.Path, overrides.Store.SQLite.Path)
		overrideString(&c.Store.S3.Bucket, overrides.Store.S3.Bucket)
		overrideString(&c.Store.S3.Prefix, overrides.Store.S3.Prefix)
		overrideString(&c.Store.S3.Region, overrides.Store.S3.Region)
		overrideString(&c.Store.S3.Endpoint, overrides.Store.S3.Endpoint)
	}

	if overrides.Session != nil {
		overrideNonZero(&c.Session.ChunkSize, overrides.Session.ChunkSize)
		overrideNonZero(&c.Session.IdleTimeout, overrides.Session.IdleTimeout)
		c.Session.LegacyShortFrameCommit = overrides.Session.LegacyShortFrameCommit
		overrideNonZero(&c.Session.LargeMessageThreshold, overrides.Session.LargeMessageThreshold)
		overrideNonZero(&c.Session.MaxMessageSize, overrides.Session.MaxMessageSize)
	}

	if overrides.Log != nil {
		overrideString(&c.Log.Level, overrides.Log.Level)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func overrideNonZero[T ByteSize | Duration](target *T, value T) {
	if value != 0 {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Listen.Socket = expandVars(c.Listen.Socket, vars)
	c.Store.SQLite.Path = expandVars(c.Store.SQLite.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Listen.HTTP == "" && c.Listen.Socket == "" && c.Listen.TCP == "" {
		errs = append(errs, fmt.Errorf("at least one of listen.http, listen.socket, listen.tcp is required"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("store.sqlite.path is required for the sqlite backend"))
		}
	case BackendS3:
		if c.Store.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("store.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", []string{BackendMemory, BackendSQLite, BackendS3}))
	}

	if _, err := objectstore.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}
	if _, err := objectstore.ParseReadMode(c.Store.ReadMode); err != nil {
		errs = append(errs, fmt.Errorf("store.read_mode: %w", err))
	}
	if c.Store.MaxObjectSize < 0 {
		errs = append(errs, fmt.Errorf("store.max_object_size must not be negative"))
	}

	if c.Session.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("session.chunk_size must be positive"))
	}
	if c.Session.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("session.max_message_size must not be negative"))
	}
	if c.Session.MaxMessageSize > 0 && c.Session.ChunkSize > c.Session.MaxMessageSize {
		errs = append(errs, fmt.Errorf("session.chunk_size (%s) exceeds session.max_message_size (%s)",
			c.Session.ChunkSize, c.Session.MaxMessageSize))
	}
	// Clients read GET chunks with the default frame limit whatever
	// the server accepts inbound.
	if c.Session.ChunkSize > protocol.DefaultMaxFrameSize {
		errs = append(errs, fmt.Errorf("session.chunk_size (%s) exceeds the client frame limit (%s)",
			c.Session.ChunkSize, ByteSize(protocol.DefaultMaxFrameSize)))
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout must not be negative"))
	}
	if c.Session.LegacyShortFrameCommit && c.Session.LargeMessageThreshold <= 0 {
		errs = append(errs, fmt.Errorf("session.large_message_threshold must be positive in legacy mode"))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
