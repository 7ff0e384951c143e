// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import "context"

// Backend persists committed objects in their stored encoding.
//
// Implementations must be safe for concurrent use, and each call must
// be atomic with respect to every other call: Put replaces the whole
// object or nothing, Get never observes a partially written object,
// and Keys returns a snapshot taken at one instant.
type Backend interface {
	// Put inserts or replaces the object at object.Key.
	Put(ctx context.Context, object Object) error

	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns every committed key. Each key appears once.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
