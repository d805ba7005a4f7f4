// Package storage provides a pluggable key/value layer used to persist
// chat history. A pebble backend is used by the CLI, and an in-memory
// backend is available for tests and short lived sessions.
package storage
