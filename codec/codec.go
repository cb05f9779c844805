// Package codec turns cached values into bytes and back.
//
// A Codec only deals with the value payload. simplecache adds its own framing
// around the payload, so a codec never has to encode "absent".
package codec

import "errors"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrUnknown is returned by Named for a name it does not recognize.
var ErrUnknown = errors.New("codec: unknown codec name")

// Named returns a general-purpose codec by its configuration name:
// "json" (default for ""), "cbor" or "msgpack".
func Named[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "cbor":
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	}
	return nil, ErrUnknown
}
