package cursor_test

import (
	"testing"

	"github.com/itchio/rstream/cursor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_Validate(t *testing.T) {
	buf := make([]byte, 8)

	assert.NoError(t, cursor.New(buf).Validate())
	assert.NoError(t, cursor.Empty(buf).Validate())
	assert.NoError(t, cursor.New(nil).Validate())

	bad := []cursor.Cursor{
		{Buf: buf, Pos: -1, Limit: 4},
		{Buf: buf, Pos: 5, Limit: 4},
		{Buf: buf, Pos: 0, Limit: 9},
		{Buf: nil, Pos: 0, Limit: 1},
	}
	for _, c := range bad {
		assert.Equal(t, cursor.ErrBounds, errors.Cause(c.Validate()), "%s", c.String())
	}
}

func Test_InputCycle(t *testing.T) {
	c := cursor.Empty(make([]byte, 8))
	assert.Equal(t, 8, len(c.Free()))

	n := copy(c.Free(), "abcdef")
	c.Fill(n)
	assert.Equal(t, "abcdef", string(c.Bytes()))

	c.Advance(4)
	assert.Equal(t, 2, c.Avail())
	assert.Equal(t, "ef", string(c.Bytes()))

	c.Compact()
	assert.Equal(t, 0, c.Pos)
	assert.Equal(t, 2, c.Limit)
	assert.Equal(t, "ef", string(c.Bytes()))
	assert.Equal(t, 6, len(c.Free()))

	assert.Panics(t, func() { c.Advance(3) })
	assert.Panics(t, func() { c.Fill(7) })
}

func Test_OutputCycle(t *testing.T) {
	c := cursor.New(make([]byte, 4))
	n := copy(c.Bytes(), "xyz")
	c.Advance(n)
	assert.Equal(t, "xyz", string(c.Written()))
	assert.Equal(t, 1, c.Avail())

	c.Reset()
	assert.Equal(t, 0, len(c.Written()))
	assert.Equal(t, 4, c.Avail())
}
