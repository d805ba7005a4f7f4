package storage

import (
	"context"
	"fmt"
	"iter"
)

// Entry is a single key/value pair held by a backend.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Backend is a paginated key/value store.
//
// List returns at most pageSize entries starting at pageToken (or the
// beginning when nil), plus the token of the next page, which is nil when
// there are no more entries. Entry order is backend specific.
type Backend[K, V any] interface {
	Get(ctx context.Context, key K) (value V, found bool, err error)
	Set(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
	List(ctx context.Context, pageSize *int, pageToken *K) (entries iter.Seq2[K, V], nextPageToken *K, err error)
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// All walks every page of b and returns all entries.
func All[K, V any](ctx context.Context, b Backend[K, V], pageSize int) ([]Entry[K, V], error) {
	var (
		out   []Entry[K, V]
		token *K
	)

	for {
		entries, next, err := b.List(ctx, PageSize(pageSize), token)
		if err != nil {
			return nil, err
		}

		for k, v := range entries {
			out = append(out, Entry[K, V]{Key: k, Value: v})
		}

		if next == nil {
			return out, nil
		}
		token = next
	}
}

// Truncater is implemented by backends that can drop every entry at once.
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Clear removes every entry of b, using Truncate when the backend has it.
func Clear[K, V any](ctx context.Context, b Backend[K, V]) error {
	if t, ok := b.(Truncater); ok {
		return t.Truncate(ctx)
	}

	entries, err := All(ctx, b, 100)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := b.Delete(ctx, e.Key); err != nil {
			return fmt.Errorf("failed to delete entry %v: %w", e.Key, err)
		}
	}

	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// PageSize returns a page size argument for List.
func PageSize(pageSize int) *int {
	return ptr(pageSize)
}

// PageToken returns a page token argument for List.
func PageToken[T any](pageToken T) *T {
	return ptr(pageToken)
}
