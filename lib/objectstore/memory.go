// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps objects in a map for the life of the process.
// Keys enumerate in first-insertion order; overwriting a key keeps its
// position.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]Object
	order   []string
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]Object)}
}

func (b *MemoryBackend) Put(_ context.Context, object Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.objects[object.Key]; !exists {
		b.order = append(b.order, object.Key)
	}
	b.objects[object.Key] = object
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	object, exists := b.objects[key]
	if !exists {
		return Object{}, ErrNotFound
	}
	return object, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.objects[key]; !exists {
		return false, nil
	}
	delete(b.objects, key)
	for i, existing := range b.order {
		if existing == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys copies the key order under the read lock, so the returned
// slice is unaffected by later mutations.
func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, len(b.order))
	copy(keys, b.order)
	return keys, nil
}

// Len returns the number of committed objects.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

func (b *MemoryBackend) Close() error { return nil }
