// Package cursor provides the buffer views exchanged with a streaming
// job: a caller-owned byte slice plus a position and a limit.
//
// For an input cursor, Buf[Pos:Limit] holds the bytes not yet consumed.
// For an output cursor, Buf[Pos:Limit] is the room left to write in,
// and Buf[:Pos] is what was produced since the last Reset.
package cursor

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrBounds = errors.New("cursor bounds out of range")

type Cursor struct {
	Buf   []byte
	Pos   int
	Limit int
}

// New returns a cursor spanning all of buf.
func New(buf []byte) *Cursor {
	return &Cursor{Buf: buf, Limit: len(buf)}
}

// Empty returns a cursor over buf with nothing between Pos and Limit,
// ready to be filled.
func Empty(buf []byte) *Cursor {
	return &Cursor{Buf: buf}
}

// Validate returns ErrBounds unless 0 <= Pos <= Limit <= len(Buf).
func (c *Cursor) Validate() error {
	if c.Pos < 0 || c.Limit < c.Pos || c.Limit > len(c.Buf) {
		return errors.Wrapf(ErrBounds, "pos %d, limit %d, capacity %d", c.Pos, c.Limit, len(c.Buf))
	}
	return nil
}

// Avail returns the number of bytes between Pos and Limit.
func (c *Cursor) Avail() int {
	return c.Limit - c.Pos
}

// Bytes returns Buf[Pos:Limit].
func (c *Cursor) Bytes() []byte {
	return c.Buf[c.Pos:c.Limit]
}

// Advance moves Pos forward by n, which must not exceed Avail.
func (c *Cursor) Advance(n int) {
	if n < 0 || n > c.Avail() {
		panic(fmt.Sprintf("cursor: advance by %d with %d available", n, c.Avail()))
	}
	c.Pos += n
}

// Free returns the part of Buf after Limit, where an input cursor
// can be refilled.
func (c *Cursor) Free() []byte {
	return c.Buf[c.Limit:]
}

// Fill extends Limit by n bytes that were just written into Free().
func (c *Cursor) Fill(n int) {
	if n < 0 || c.Limit+n > len(c.Buf) {
		panic(fmt.Sprintf("cursor: fill by %d with %d free", n, len(c.Buf)-c.Limit))
	}
	c.Limit += n
}

// Written returns Buf[:Pos], what an output cursor holds since Reset.
func (c *Cursor) Written() []byte {
	return c.Buf[:c.Pos]
}

// Reset rewinds an output cursor: Pos 0, Limit at capacity.
func (c *Cursor) Reset() {
	c.Pos = 0
	c.Limit = len(c.Buf)
}

// Compact moves the unconsumed bytes of an input cursor to the front
// of Buf, so that Free() is as large as possible.
func (c *Cursor) Compact() {
	n := copy(c.Buf, c.Buf[c.Pos:c.Limit])
	c.Pos = 0
	c.Limit = n
}

func (c *Cursor) String() string {
	return fmt.Sprintf("[%d:%d of %d]", c.Pos, c.Limit, len(c.Buf))
}
