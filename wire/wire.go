// Package wire holds the byte-level conventions shared by signature and
// delta streams: big-endian integers of 1, 2, 4 or 8 bytes, and 4-byte
// magic numbers that identify the stream kind.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

var ENDIANNESS = binary.BigEndian

// Magic identifies the kind of a signature or delta stream.
type Magic uint32

const (
	// DeltaMagic starts every delta stream.
	DeltaMagic Magic = 0x72730236
	// MD4SigMagic starts signatures with MD4 strong sums.
	MD4SigMagic Magic = 0x72730136
	// Blake2SigMagic starts signatures with BLAKE2b strong sums.
	Blake2SigMagic Magic = 0x72730137
)

// MagicSize is the on-wire size of a Magic
const MagicSize = 4

var ErrInvalidMagic = errors.New("invalid magic number")

func (m Magic) String() string {
	switch m {
	case DeltaMagic:
		return "delta"
	case MD4SigMagic:
		return "md4-signature"
	case Blake2SigMagic:
		return "blake2-signature"
	}
	return fmt.Sprintf("magic(%#08x)", uint32(m))
}

// IsSignature returns true for the magics that start a signature stream.
func (m Magic) IsSignature() bool {
	return m == MD4SigMagic || m == Blake2SigMagic
}

func PutMagic(buf []byte, m Magic) {
	ENDIANNESS.PutUint32(buf, uint32(m))
}

func ReadMagic(buf []byte) Magic {
	return Magic(ENDIANNESS.Uint32(buf))
}

// ExpectMagic returns ErrInvalidMagic unless buf starts with m.
func ExpectMagic(buf []byte, m Magic) error {
	if len(buf) < MagicSize {
		return errors.Wrap(ErrInvalidMagic, "short read")
	}
	read := ReadMagic(buf)
	if read != m {
		return errors.Wrapf(ErrInvalidMagic, "expected %s, read %s", m, read)
	}
	return nil
}

// IntSize returns the smallest of 1, 2, 4 or 8 that can hold v.
// v must not be negative.
func IntSize(v int64) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	case v <= 0xffffffff:
		return 4
	}
	return 8
}

// PutInt writes v as a big-endian integer of the given size into buf.
func PutInt(buf []byte, size int, v int64) {
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		ENDIANNESS.PutUint16(buf, uint16(v))
	case 4:
		ENDIANNESS.PutUint32(buf, uint32(v))
	case 8:
		ENDIANNESS.PutUint64(buf, uint64(v))
	default:
		panic(fmt.Sprintf("wire: invalid int size %d", size))
	}
}

// ReadInt reads a big-endian integer of the given size from buf.
// 8-byte values above math.MaxInt64 come back negative, callers
// must reject them.
func ReadInt(buf []byte, size int) int64 {
	switch size {
	case 1:
		return int64(buf[0])
	case 2:
		return int64(ENDIANNESS.Uint16(buf))
	case 4:
		return int64(ENDIANNESS.Uint32(buf))
	case 8:
		return int64(ENDIANNESS.Uint64(buf))
	}
	panic(fmt.Sprintf("wire: invalid int size %d", size))
}
