package wire

import (
	"io"

	"github.com/pkg/errors"
)

// ReadContext reads stream headers from a plain io.Reader. The engine
// itself never blocks on readers; this is for tools inspecting a file.
type ReadContext struct {
	reader io.Reader
	buf    []byte
}

func NewReadContext(reader io.Reader) *ReadContext {
	return &ReadContext{reader: reader, buf: make([]byte, 8)}
}

func (r *ReadContext) Reader() io.Reader {
	return r.reader
}

func (r *ReadContext) ReadMagic() (Magic, error) {
	_, err := io.ReadFull(r.reader, r.buf[:MagicSize])
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return ReadMagic(r.buf), nil
}

func (r *ReadContext) ExpectMagic(m Magic) error {
	_, err := io.ReadFull(r.reader, r.buf[:MagicSize])
	if err != nil {
		return errors.WithStack(err)
	}
	return ExpectMagic(r.buf[:MagicSize], m)
}

// ReadInt reads a big-endian integer of 1, 2, 4 or 8 bytes.
func (r *ReadContext) ReadInt(size int) (int64, error) {
	_, err := io.ReadFull(r.reader, r.buf[:size])
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return ReadInt(r.buf, size), nil
}
