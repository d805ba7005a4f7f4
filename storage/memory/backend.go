package memory

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/ximatai/openai/storage"
)

var (
	_ storage.Backend[string, string] = (*Backend[string, string])(nil)
	_ storage.Truncater                = (*Backend[string, string])(nil)
)

// Backend keeps entries in a slice, newest first. It is safe for
// concurrent use.
type Backend[K comparable, V any] struct {
	mu    sync.RWMutex
	store []storage.Entry[K, V]
}

// NewBackend creates a new in-memory storage backend, which uses a slice to store entries.
func NewBackend[K comparable, V any]() *Backend[K, V] {
	return &Backend[K, V]{}
}

// Get retrieves a value from the in-memory store by its key.
func (b *Backend[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, entry := range b.store {
		if entry.Key == key {
			return entry.Value, true, nil
		}
	}
	var zero V
	return zero, false, nil
}

// Set stores a key-value pair in the in-memory store. New keys are added
// at the front.
func (b *Backend[K, V]) Set(ctx context.Context, key K, value V) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.store {
		if entry.Key == key {
			b.store[i].Value = value
			return nil
		}
	}

	b.store = slices.Insert(b.store, 0, storage.Entry[K, V]{Key: key, Value: value})
	return nil
}

// Delete removes a key-value pair from the in-memory store by its key.
func (b *Backend[K, V]) Delete(ctx context.Context, key K) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = slices.DeleteFunc(b.store, func(e storage.Entry[K, V]) bool {
		return e.Key == key
	})
	return nil
}

// List retrieves key-value pairs from the in-memory store, with optional
// pagination. The page token is the last key of the previous page.
func (b *Backend[K, V]) List(ctx context.Context, pageSize *int, pageToken *K) (iter.Seq2[K, V], *K, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		entries       []storage.Entry[K, V]
		nextPageToken *K
	)

	if pageToken != nil {
		for i, entry := range b.store {
			if entry.Key == *pageToken {
				entries = b.store[i+1:]
				break
			}
		}
	} else {
		entries = b.store
	}

	if pageSize != nil && *pageSize > 0 && len(entries) > *pageSize {
		entries = entries[:*pageSize]
		last := entries[*pageSize-1].Key
		nextPageToken = &last
	}

	// Copy so the iterator is unaffected by later writes.
	entries = slices.Clone(entries)

	return func(yield func(K, V) bool) {
		for _, entry := range entries {
			if !yield(entry.Key, entry.Value) {
				break
			}
		}
	}, nextPageToken, nil
}

// Truncate removes every entry.
func (b *Backend[K, V]) Truncate(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = nil
	return nil
}

// Flush is a no-op for the in-memory backend.
func (b *Backend[K, V]) Flush(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend[K, V]) Close(context.Context) error {
	return nil
}
