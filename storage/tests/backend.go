// Package tests holds a conformance suite shared by the storage backends.
package tests

import (
	"testing"

	"github.com/shoenig/test/must"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/storage"
)

// BackendSuite tests a backend implementation of the storage package, using
// the provided backend instance to perform the tests.
//
// Both backends list "hello again" before "hello": the memory backend
// because it was written last, pebble because `"hello again"` sorts
// before `"hello"` once JSON encoded.
func BackendSuite(t *testing.T, backend storage.Backend[string, string]) {
	t.Helper()

	_, ok, err := backend.Get(t.Context(), "missing")
	must.NoError(t, err)
	must.False(t, ok)

	err = backend.Set(t.Context(), "hello", "world")
	must.NoError(t, err)

	value, ok, err := backend.Get(t.Context(), "hello")
	must.NoError(t, err)
	must.True(t, ok)
	must.Eq(t, "world", value)

	err = backend.Set(t.Context(), "hello again", "world2")
	must.NoError(t, err)

	value, ok, err = backend.Get(t.Context(), "hello again")
	must.NoError(t, err)
	must.True(t, ok)
	must.Eq(t, "world2", value)

	entries, next, err := backend.List(t.Context(), storage.PageSize(1), nil)
	must.NoError(t, err)
	must.NotNil(t, next)

	for key, value := range entries {
		must.Eq(t, "hello again", key)
		must.Eq(t, "world2", value)
	}

	entries, next, err = backend.List(t.Context(), nil, next)
	must.NoError(t, err)
	must.Nil(t, next)

	for key, value := range entries {
		must.Eq(t, "hello", key)
		must.Eq(t, "world", value)
	}

	all, err := storage.All(t.Context(), backend, 1)
	must.NoError(t, err)
	must.Len(t, 2, all)

	// Overwrite keeps a single entry.
	must.NoError(t, backend.Set(t.Context(), "hello", "world3"))
	value, _, err = backend.Get(t.Context(), "hello")
	must.NoError(t, err)
	must.Eq(t, "world3", value)

	must.NoError(t, backend.Delete(t.Context(), "hello"))
	_, ok, err = backend.Get(t.Context(), "hello")
	must.NoError(t, err)
	must.False(t, ok)

	all, err = storage.All(t.Context(), backend, 10)
	must.NoError(t, err)
	must.Len(t, 1, all)
	must.Eq(t, "hello again", all[0].Key)

	must.NoError(t, backend.Flush(t.Context()))

	for _, key := range []string{"a", "b", "c"} {
		must.NoError(t, backend.Set(t.Context(), key, key))
	}

	must.NoError(t, storage.Clear(t.Context(), backend))
	all, err = storage.All(t.Context(), backend, 10)
	must.NoError(t, err)
	must.SliceEmpty(t, all)

	// Clear on a backend without Truncate deletes entry by entry.
	must.NoError(t, backend.Set(t.Context(), "d", "d"))
	must.NoError(t, storage.Clear(t.Context(), deleteOnly[string, string]{backend}))
	all, err = storage.All(t.Context(), backend, 10)
	must.NoError(t, err)
	must.SliceEmpty(t, all)
}

// deleteOnly hides any Truncate method of the wrapped backend.
type deleteOnly[K, V any] struct {
	storage.Backend[K, V]
}

// BackendSuiteChatMessages checks that chat messages survive a round trip
// through the backend.
func BackendSuiteChatMessages(t *testing.T, b storage.Backend[string, openai.ChatMessage]) {
	t.Helper()

	firstKey := "hello"
	secondKey := "hello again"

	firstMessage := openai.UserMessage("world")
	secondMessage := openai.ChatMessage{Role: openai.ChatRoleAssistant, Content: "world2", Name: "bot"}

	err := b.Set(t.Context(), firstKey, firstMessage)
	must.NoError(t, err)

	value, ok, err := b.Get(t.Context(), firstKey)
	must.NoError(t, err)
	must.True(t, ok)
	must.Eq(t, firstMessage, value)

	err = b.Set(t.Context(), secondKey, secondMessage)
	must.NoError(t, err)

	value, ok, err = b.Get(t.Context(), secondKey)
	must.NoError(t, err)
	must.True(t, ok)
	must.Eq(t, secondMessage, value)

	entries, next, err := b.List(t.Context(), storage.PageSize(1), nil)
	must.NoError(t, err)
	must.NotNil(t, next)

	for key, value := range entries {
		must.Eq(t, secondKey, key)
		must.Eq(t, secondMessage.Content, value.Content)
	}

	entries, next, err = b.List(t.Context(), nil, next)
	must.NoError(t, err)
	must.Nil(t, next)

	for key, value := range entries {
		must.Eq(t, firstKey, key)
		must.Eq(t, firstMessage.Role, value.Role)
	}
}
