package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_LiteralHeader(t *testing.T) {
	assert.Equal(t, []byte{0x01}, appendLiteralHeader(nil, 1))
	assert.Equal(t, []byte{0x40}, appendLiteralHeader(nil, 64))
	assert.Equal(t, []byte{0x41, 65}, appendLiteralHeader(nil, 65))
	assert.Equal(t, []byte{0x42, 0x01, 0x00}, appendLiteralHeader(nil, 256))
	assert.Equal(t, []byte{0x43, 0x00, 0x01, 0x00, 0x00}, appendLiteralHeader(nil, 65536))
}

func Test_CopyCommand(t *testing.T) {
	assert.Equal(t, []byte{0x45, 0x00, 0x10}, appendCopy(nil, 0, 16))
	assert.Equal(t, []byte{0x49, 0x01, 0x00, 0x10}, appendCopy(nil, 256, 16))
	assert.Equal(t, []byte{0x4a, 0x01, 0x00, 0x01, 0x00}, appendCopy(nil, 256, 256))
	assert.Equal(t,
		[]byte{0x52, 0, 0, 0, 1, 0, 0, 0, 0, 0x01, 0x00},
		appendCopy(nil, 1<<32, 256))
}

func Test_DecodeOp(t *testing.T) {
	assert.Equal(t, cmdEnd, decodeOp(0x00).kind)

	c := decodeOp(0x20)
	assert.Equal(t, cmdLiteral, c.kind)
	assert.EqualValues(t, 0x20, c.immediate)
	assert.Equal(t, 0, c.paramsSize())

	c = decodeOp(0x44)
	assert.Equal(t, cmdLiteral, c.kind)
	assert.Equal(t, 8, c.size1)

	for pos := 0; pos < 4; pos++ {
		for length := 0; length < 4; length++ {
			op := byte(opCopyN1N1 + 4*pos + length)
			c = decodeOp(op)
			assert.Equal(t, cmdCopy, c.kind)
			assert.Equal(t, 1<<uint(pos), c.size1)
			assert.Equal(t, 1<<uint(length), c.size2)
		}
	}

	for op := 0x55; op <= 0xff; op++ {
		assert.Equal(t, cmdBogus, decodeOp(byte(op)).kind)
	}
}
