package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ByteOrder selects the encoding of 8-byte size fields.
type ByteOrder uint8

const (
	// LittleEndian matches the raw in-memory layout on amd64 and arm64.
	LittleEndian ByteOrder = iota
	// BigEndian is network byte order.
	BigEndian
	// NativeEndian follows the host, reproducing a raw memory copy of the
	// integer. Peers on different architectures may disagree.
	NativeEndian
)

// ParseByteOrder accepts "little", "big" or "native". The empty string
// selects LittleEndian.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	case "native":
		return NativeEndian, nil
	default:
		return LittleEndian, fmt.Errorf("unknown byte order %q (expected little, big or native)", s)
	}
}

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big"
	case NativeEndian:
		return "native"
	default:
		return "little"
	}
}

func (o ByteOrder) order() binary.ByteOrder {
	switch o {
	case BigEndian:
		return binary.BigEndian
	case NativeEndian:
		return binary.NativeEndian
	default:
		return binary.LittleEndian
	}
}

// PutUint64 encodes v into the first SizeFieldLen bytes of b.
// It panics if b is shorter than SizeFieldLen.
func PutUint64(o ByteOrder, b []byte, v uint64) {
	o.order().PutUint64(b[:SizeFieldLen], v)
}

// Uint64 decodes the first SizeFieldLen bytes of b.
// It panics if b is shorter than SizeFieldLen.
func Uint64(o ByteOrder, b []byte) uint64 {
	return o.order().Uint64(b[:SizeFieldLen])
}

// AppendUint64 appends the encoding of v to dst.
func AppendUint64(o ByteOrder, dst []byte, v uint64) []byte {
	var field [SizeFieldLen]byte
	PutUint64(o, field[:], v)
	return append(dst, field[:]...)
}
