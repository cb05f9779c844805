// Package wire frames cached values so a stored "nothing here" marker can be
// told apart from a real value and from bytes written by someone else.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Kind tags what an envelope carries.
type Kind byte

const (
	KindValue    Kind = 1
	KindNegative Kind = 2
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 1 + 4
)

var (
	ErrCorrupt = errors.New("simplecache: corrupt entry")
	magic4     = [...]byte{'S', 'C', 'V', '1'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope: magic(4) | ver(1) | kind(1) | vlen(u32 be) | payload(vlen)
func encode(kind Kind, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(kind))

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// EncodeValue wraps a codec payload.
func EncodeValue(payload []byte) []byte { return encode(KindValue, payload) }

// EncodeNegative returns the marker stored when a computation found nothing.
func EncodeNegative() []byte { return encode(KindNegative, nil) }

// Decode validates b and returns its kind and payload. The payload aliases b.
// Anything other than exactly one well-formed envelope is ErrCorrupt.
func Decode(b []byte) (Kind, []byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, nil, ErrCorrupt
	}
	kind := Kind(b[5])
	if kind != KindValue && kind != KindNegative {
		return 0, nil, ErrCorrupt
	}

	off := 6
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact: no truncation, no trailing bytes
		return 0, nil, ErrCorrupt
	}
	if kind == KindNegative && vlen != 0 {
		return 0, nil, ErrCorrupt
	}
	return kind, b[off : off+vlen], nil
}
