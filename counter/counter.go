// Package counter wraps readers and writers to keep track of how many
// bytes went through them, optionally notifying a callback.
package counter

import "io"

// A Callback receives the running total after every read or write.
type Callback func(count int64)

type Reader struct {
	count  int64
	reader io.Reader

	onRead Callback
}

var _ io.Reader = (*Reader)(nil)

func NewReader(reader io.Reader, onRead Callback) *Reader {
	return &Reader{
		reader: reader,
		onRead: onRead,
	}
}

func (r *Reader) Count() int64 {
	return r.count
}

// Read reads from the underlying reader. A nil reader acts as an
// endless source of zeroes.
func (r *Reader) Read(buffer []byte) (n int, err error) {
	if r.reader == nil {
		for i := range buffer {
			buffer[i] = 0
		}
		n = len(buffer)
	} else {
		n, err = r.reader.Read(buffer)
	}

	if n > 0 {
		r.count += int64(n)
		if r.onRead != nil {
			r.onRead(r.count)
		}
	}
	return
}

type Writer struct {
	count  int64
	writer io.Writer

	onWrite Callback
}

var _ io.Writer = (*Writer)(nil)

// NewWriter returns a counting writer. A nil writer discards
// everything, only counting.
func NewWriter(writer io.Writer, onWrite Callback) *Writer {
	return &Writer{
		writer:  writer,
		onWrite: onWrite,
	}
}

func (w *Writer) Count() int64 {
	return w.count
}

func (w *Writer) Write(buffer []byte) (n int, err error) {
	if w.writer == nil {
		n = len(buffer)
	} else {
		n, err = w.writer.Write(buffer)
	}

	w.count += int64(n)
	if w.onWrite != nil {
		w.onWrite(w.count)
	}
	return
}
