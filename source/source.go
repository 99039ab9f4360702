// Package source provides random access to the base file of a patch.
//
// A patch job calls Fetch synchronously, in the middle of a step,
// whenever a copy command needs base bytes. The returned view only has
// to stay valid until the next Fetch or until the step returns, so
// implementations are free to reuse one buffer.
package source

import (
	"io"

	"github.com/itchio/rstream/cursor"
	"github.com/pkg/errors"
)

// Source returns a view of at most length bytes of the base, starting
// at pos. Bytes are in view.Buf[view.Pos:view.Limit]. A view shorter
// than length is fine; an empty view means the base ends before pos.
type Source interface {
	Fetch(pos int64, length int) (cursor.Cursor, error)
}

// Func adapts a plain function to Source.
type Func func(pos int64, length int) (cursor.Cursor, error)

var _ Source = Func(nil)

func (f Func) Fetch(pos int64, length int) (cursor.Cursor, error) {
	return f(pos, length)
}

var ErrNegativeRange = errors.New("negative position or length")

type bytesSource struct {
	data []byte
}

// FromBytes returns a Source serving views straight into data.
func FromBytes(data []byte) Source {
	return &bytesSource{data: data}
}

func (bs *bytesSource) Fetch(pos int64, length int) (cursor.Cursor, error) {
	if pos < 0 || length < 0 {
		return cursor.Cursor{}, errors.WithStack(ErrNegativeRange)
	}

	size := int64(len(bs.data))
	if pos >= size {
		return cursor.Cursor{Buf: bs.data, Pos: len(bs.data), Limit: len(bs.data)}, nil
	}

	end := pos + int64(length)
	if end > size {
		end = size
	}
	return cursor.Cursor{Buf: bs.data, Pos: int(pos), Limit: int(end)}, nil
}

type readerAtSource struct {
	r   io.ReaderAt
	buf []byte
}

// FromReaderAt returns a Source reading from r into a buffer that is
// reused across calls.
func FromReaderAt(r io.ReaderAt) Source {
	return &readerAtSource{r: r}
}

func (rs *readerAtSource) Fetch(pos int64, length int) (cursor.Cursor, error) {
	if pos < 0 || length < 0 {
		return cursor.Cursor{}, errors.WithStack(ErrNegativeRange)
	}

	if cap(rs.buf) < length {
		rs.buf = make([]byte, length)
	}
	buf := rs.buf[:length]

	n, err := rs.r.ReadAt(buf, pos)
	if err != nil {
		if errors.Cause(err) != io.EOF {
			return cursor.Cursor{}, errors.Wrapf(err, "reading %d bytes at %d", length, pos)
		}
	}
	return cursor.Cursor{Buf: buf, Pos: 0, Limit: n}, nil
}
