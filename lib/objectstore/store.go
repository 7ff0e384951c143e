// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/blobstore/lib/clock"
)

// ReadMode selects what Store.Get returns. It is fixed per deployment
// so a reader never has to guess how an object is encoded.
type ReadMode uint8

const (
	// ReadDecompress returns the canonical payload.
	ReadDecompress ReadMode = iota

	// ReadPassthrough returns the stored bytes as-is. Clients
	// decompress using the deployment's documented scheme.
	ReadPassthrough
)

func (m ReadMode) String() string {
	switch m {
	case ReadDecompress:
		return "decompress"
	case ReadPassthrough:
		return "passthrough"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseReadMode parses a read mode name. The empty string means
// decompress.
func ParseReadMode(name string) (ReadMode, error) {
	switch name {
	case "", "decompress":
		return ReadDecompress, nil
	case "passthrough":
		return ReadPassthrough, nil
	default:
		return 0, fmt.Errorf("unknown read mode %q", name)
	}
}

// Options configures a Store. The zero value stores uncompressed,
// decompresses on read, has no size limit, uses the real clock and
// discards logs.
type Options struct {
	Compression   Compression
	ReadMode      ReadMode
	MaxObjectSize int64
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Store is the shared mapping from object key to committed payload.
// It handles digesting, compression and the read mode; the Backend
// provides persistence and per-operation atomicity. Store is safe for
// concurrent use.
type Store struct {
	backend       Backend
	compression   Compression
	readMode      ReadMode
	maxObjectSize int64
	clock         clock.Clock
	logger        *slog.Logger
}

// New returns a Store over backend.
func New(backend Backend, options Options) *Store {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		backend:       backend,
		compression:   options.Compression,
		readMode:      options.ReadMode,
		maxObjectSize: options.MaxObjectSize,
		clock:         options.Clock,
		logger:        options.Logger,
	}
}

// Compression returns the deployment's compression scheme.
func (s *Store) Compression() Compression { return s.compression }

// ReadMode returns the deployment's read mode.
func (s *Store) ReadMode() ReadMode { return s.readMode }

// MaxObjectSize returns the per-object size limit, or 0 for none.
func (s *Store) MaxObjectSize() int64 { return s.maxObjectSize }

// Put commits payload under key, replacing any previous object. The
// store takes ownership of payload: the caller must not modify it
// afterwards.
func (s *Store) Put(ctx context.Context, key string, payload []byte) (Info, error) {
	if err := ValidateKey(key); err != nil {
		return Info{}, err
	}
	if s.maxObjectSize > 0 && int64(len(payload)) > s.maxObjectSize {
		return Info{}, fmt.Errorf("%w: %d bytes, limit is %d", ErrPayloadTooLarge, len(payload), s.maxObjectSize)
	}

	stored, err := Compress(payload, s.compression)
	if err != nil {
		return Info{}, fmt.Errorf("compressing %s: %w", key, err)
	}

	object := Object{
		Info: Info{
			Key:         key,
			Size:        int64(len(payload)),
			StoredSize:  int64(len(stored)),
			Compression: s.compression,
			Digest:      ComputeDigest(payload),
			CreatedAt:   s.clock.Now().UTC(),
		},
		Data: stored,
	}
	if err := s.backend.Put(ctx, object); err != nil {
		return Info{}, fmt.Errorf("storing %s: %w", key, err)
	}

	s.logger.Debug("object committed",
		"object_id", key,
		"size", object.Size,
		"stored_size", object.StoredSize,
		"compression", object.Compression.String(),
	)
	return object.Info, nil
}

// Get returns the committed object at key, or ErrNotFound. In
// ReadDecompress mode Data is the canonical payload and Compression is
// none; in ReadPassthrough mode Data is the stored encoding. The
// returned Data must not be modified.
func (s *Store) Get(ctx context.Context, key string) (Object, error) {
	object, err := s.backend.Get(ctx, key)
	if err != nil {
		return Object{}, err
	}
	if s.readMode == ReadPassthrough || object.Compression == CompressionNone {
		return object, nil
	}

	payload, err := Decompress(object.Data, object.Compression, object.Size)
	if err != nil {
		return Object{}, fmt.Errorf("reading %s: %w", key, err)
	}
	object.Data = payload
	object.Compression = CompressionNone
	return object, nil
}

// Stat returns the metadata of the object at key, or ErrNotFound.
// Compression reports the stored encoding regardless of read mode.
func (s *Store) Stat(ctx context.Context, key string) (Info, error) {
	object, err := s.backend.Get(ctx, key)
	if err != nil {
		return Info{}, err
	}
	return object.Info, nil
}

// Delete removes key and reports whether an object existed. Deleting
// an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", key, err)
	}
	if existed {
		s.logger.Debug("object deleted", "object_id", key)
	}
	return existed, nil
}

// ListKeys returns a snapshot of all committed keys.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
