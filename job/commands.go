package job

import (
	"github.com/itchio/rstream/wire"
)

// Delta commands, as laid out by librsync's prototab. Each command is
// one op byte followed by up to two big-endian parameters whose sizes
// are implied by the op.
const (
	opEnd = 0x00

	// ops 0x01 to 0x40 are literals whose length is the op itself
	opLiteral1  = 0x01
	opLiteral64 = 0x40

	// literal with a 1, 2, 4 or 8-byte length parameter
	opLiteralN1 = 0x41
	opLiteralN8 = 0x44

	// copies with a 1, 2, 4 or 8-byte position, then a 1, 2, 4 or
	// 8-byte length
	opCopyN1N1 = 0x45
	opCopyN8N8 = 0x54
)

// maxCommandHeader is an op byte and two 8-byte parameters
const maxCommandHeader = 1 + 8 + 8

func sizeIndex(size int) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	}
	return 3
}

func indexSize(idx int) int {
	return 1 << uint(idx)
}

// appendLiteralHeader appends the command announcing length literal bytes.
func appendLiteralHeader(buf []byte, length int64) []byte {
	if length <= opLiteral64 {
		return append(buf, byte(length))
	}

	size := wire.IntSize(length)
	var param [8]byte
	wire.PutInt(param[:], size, length)
	buf = append(buf, byte(opLiteralN1+sizeIndex(size)))
	return append(buf, param[:size]...)
}

// appendCopy appends the command copying length base bytes from pos.
func appendCopy(buf []byte, pos int64, length int64) []byte {
	posSize := wire.IntSize(pos)
	lenSize := wire.IntSize(length)

	var param [8]byte
	buf = append(buf, byte(opCopyN1N1+4*sizeIndex(posSize)+sizeIndex(lenSize)))
	wire.PutInt(param[:], posSize, pos)
	buf = append(buf, param[:posSize]...)
	wire.PutInt(param[:], lenSize, length)
	return append(buf, param[:lenSize]...)
}

type commandKind int

const (
	cmdEnd commandKind = iota
	cmdLiteral
	cmdCopy
	cmdBogus
)

// command describes an op byte: its kind, and for literals 1 to 64
// the immediate length, otherwise the sizes of its parameters.
type command struct {
	kind      commandKind
	immediate int64
	size1     int
	size2     int
}

func decodeOp(op byte) command {
	switch {
	case op == opEnd:
		return command{kind: cmdEnd}
	case op >= opLiteral1 && op <= opLiteral64:
		return command{kind: cmdLiteral, immediate: int64(op)}
	case op >= opLiteralN1 && op <= opLiteralN8:
		return command{kind: cmdLiteral, size1: indexSize(int(op - opLiteralN1))}
	case op >= opCopyN1N1 && op <= opCopyN8N8:
		idx := int(op - opCopyN1N1)
		return command{kind: cmdCopy, size1: indexSize(idx / 4), size2: indexSize(idx % 4)}
	}
	return command{kind: cmdBogus}
}

// paramsSize is the number of parameter bytes following the op.
func (c command) paramsSize() int {
	return c.size1 + c.size2
}
