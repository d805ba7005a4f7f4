package storage

// Codec turns keys and values into the bytes a backend stores. Backends
// that iterate in byte order, such as pebble, list entries in the order
// of the encoded keys.
type Codec[K, V any] interface {
	EncodeKey(K) ([]byte, error)
	DecodeKey([]byte) (K, error)
	EncodeValue(V) ([]byte, error)
	DecodeValue([]byte) (V, error)
}
