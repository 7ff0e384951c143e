// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned when no committed object exists under
	// the requested key.
	ErrNotFound = errors.New("objectstore: not found")

	// ErrPayloadTooLarge is returned by Put when the payload exceeds
	// the store's configured maximum object size.
	ErrPayloadTooLarge = errors.New("objectstore: payload too large")

	// ErrInvalidKey is returned for keys that cannot be represented
	// on the wire (see ValidateKey).
	ErrInvalidKey = errors.New("objectstore: invalid key")
)

// MaxKeyLength bounds object keys. Keys travel inside control frames
// and comma-joined LIST replies, so they stay short.
const MaxKeyLength = 512

// Digest is the 32-byte BLAKE3 hash of an object's canonical payload.
type Digest [32]byte

// ComputeDigest hashes the canonical (uncompressed) payload.
func ComputeDigest(payload []byte) Digest {
	return Digest(blake3.Sum256(payload))
}

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a 64-character hex digest.
func ParseDigest(text string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("parsing digest: got %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// Info describes a committed object without its bytes.
type Info struct {
	Key string

	// Size is the length of the canonical payload.
	Size int64

	// StoredSize is the length of the bytes the backend holds.
	StoredSize int64

	// Compression is the scheme the stored bytes are encoded with.
	Compression Compression

	// Digest is the BLAKE3 hash of the canonical payload.
	Digest Digest

	// CreatedAt is the commit time. Advisory only; nothing expires.
	CreatedAt time.Time
}

// Object is a committed object. Data is encoded according to
// Compression: a backend holds the stored encoding, and Store.Get
// returns either the canonical payload (Compression is none) or the
// stored encoding, depending on the store's ReadMode.
type Object struct {
	Info
	Data []byte
}

// NewKey returns a random unique object key (a UUIDv4 string).
func NewKey() string {
	return uuid.NewString()
}

// ValidateKey reports whether key can be stored and addressed by the
// frame protocol. Keys must be non-empty, at most MaxKeyLength bytes,
// free of commas (the LIST delimiter) and free of control and space
// characters.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key is %d bytes, limit is %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	for _, r := range key {
		if r == ',' || unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: key %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}
