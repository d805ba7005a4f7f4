package storage

import (
	"encoding/json"
	"fmt"
)

var _ Codec[string, any] = (*JSONCodec[string, any])(nil)

// JSONCodec stores both keys and values as JSON.
type JSONCodec[K, V any] struct{}

func (*JSONCodec[K, V]) EncodeKey(key K) ([]byte, error) {
	return encodeJSON("key", key)
}

func (*JSONCodec[K, V]) DecodeKey(data []byte) (K, error) {
	return decodeJSON[K]("key", data)
}

func (*JSONCodec[K, V]) EncodeValue(value V) ([]byte, error) {
	return encodeJSON("value", value)
}

func (*JSONCodec[K, V]) DecodeValue(data []byte) (V, error) {
	return decodeJSON[V]("value", data)
}

func encodeJSON(what string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode %s: %w", what, err)
	}
	return b, nil
}

func decodeJSON[T any](what string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("json decode %s: %w", what, err)
	}
	return v, nil
}
