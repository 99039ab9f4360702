// Package compress wraps signature and delta streams in an optional
// compression layer, so that they can be stored or shipped compactly.
// The streaming engine itself never sees compressed bytes.
package compress

import (
	"fmt"
	"io"

	"github.com/itchio/go-brotli/dec"
	"github.com/itchio/go-brotli/enc"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Tag identifies a compression algorithm.
type Tag uint8

const (
	// None passes bytes through untouched.
	None Tag = 0
	// Brotli is slow to write and compact, the usual choice for deltas
	// that get written once and applied many times.
	Brotli Tag = 1
	// LZ4 is the fast option.
	LZ4 Tag = 2
	// Zstd sits in between.
	Zstd Tag = 3
)

// DefaultQuality is used when callers pass a quality of 0.
const DefaultQuality = 1

// ErrUnknownTag is returned for tags this package doesn't know about.
var ErrUnknownTag = errors.New("unknown compression tag")

func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case Brotli:
		return "brotli"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a tag from its String form.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "", "none":
		return None, nil
	case "brotli":
		return Brotli, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, errors.Wrapf(ErrUnknownTag, "parsing %q", name)
	}
}

// NewWriter returns a writer that compresses into w. Closing it flushes
// the compressor but leaves w open. Close can be called more than once,
// only the first call does anything.
func NewWriter(w io.Writer, tag Tag, quality int) (io.WriteCloser, error) {
	wc, err := newWriter(w, tag, quality)
	if err != nil {
		return nil, err
	}
	return &onceCloser{WriteCloser: wc}, nil
}

func newWriter(w io.Writer, tag Tag, quality int) (io.WriteCloser, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}

	switch tag {
	case None:
		return nopWriteCloser{w}, nil
	case Brotli:
		return enc.NewBrotliWriter(w, &enc.BrotliWriterOptions{
			Quality: quality,
		}), nil
	case LZ4:
		lw := lz4.NewWriter(w)
		err := lw.Apply(lz4.CompressionLevelOption(lz4Level(quality)))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return lw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(quality)))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return zw, nil
	default:
		return nil, errors.Wrapf(ErrUnknownTag, "tag %d", uint8(tag))
	}
}

// NewReader returns a reader that decompresses r. Closing it releases
// the decompressor but leaves r open.
func NewReader(r io.Reader, tag Tag) (io.ReadCloser, error) {
	switch tag {
	case None:
		return io.NopCloser(r), nil
	case Brotli:
		return readCloser(dec.NewBrotliReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownTag, "tag %d", uint8(tag))
	}
}

func lz4Level(quality int) lz4.CompressionLevel {
	switch {
	case quality <= 1:
		return lz4.Fast
	case quality <= 3:
		return lz4.Level1
	case quality <= 5:
		return lz4.Level3
	case quality <= 7:
		return lz4.Level5
	default:
		return lz4.Level9
	}
}

func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

// ErrClosed is returned when writing to a closed writer.
var ErrClosed = errors.New("compressed writer is closed")

type onceCloser struct {
	io.WriteCloser
	closed bool
}

func (oc *onceCloser) Write(p []byte) (int, error) {
	if oc.closed {
		return 0, ErrClosed
	}
	return oc.WriteCloser.Write(p)
}

func (oc *onceCloser) Close() error {
	if oc.closed {
		return nil
	}
	oc.closed = true
	return oc.WriteCloser.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
