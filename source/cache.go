package source

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/itchio/rstream/cursor"
	"github.com/pkg/errors"
)

// DefaultChunkSize is the read granularity of a cached source
const DefaultChunkSize = 64 * 1024

type cachedSource struct {
	src       Source
	chunkSize int64
	chunks    *lru.Cache
}

type chunk struct {
	data []byte
}

// NewCached serves fetches from an LRU of numChunks aligned chunks
// read from src.
func NewCached(src Source, chunkSize int, numChunks int) (Source, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunks, err := lru.New(numChunks)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &cachedSource{
		src:       src,
		chunkSize: int64(chunkSize),
		chunks:    chunks,
	}, nil
}

func (cs *cachedSource) Fetch(pos int64, length int) (cursor.Cursor, error) {
	if pos < 0 || length < 0 {
		return cursor.Cursor{}, errors.WithStack(ErrNegativeRange)
	}

	index := pos / cs.chunkSize
	c, err := cs.getChunk(index)
	if err != nil {
		return cursor.Cursor{}, err
	}

	start := int(pos - index*cs.chunkSize)
	if start >= len(c.data) {
		return cursor.Cursor{Buf: c.data, Pos: len(c.data), Limit: len(c.data)}, nil
	}

	end := start + length
	if end > len(c.data) {
		end = len(c.data)
	}
	return cursor.Cursor{Buf: c.data, Pos: start, Limit: end}, nil
}

func (cs *cachedSource) getChunk(index int64) (*chunk, error) {
	if v, ok := cs.chunks.Get(index); ok {
		return v.(*chunk), nil
	}

	data := make([]byte, 0, cs.chunkSize)
	offset := index * cs.chunkSize
	for int64(len(data)) < cs.chunkSize {
		view, err := cs.src.Fetch(offset+int64(len(data)), int(cs.chunkSize)-len(data))
		if err != nil {
			return nil, err
		}
		if err := view.Validate(); err != nil {
			return nil, errors.Wrap(err, "underlying source returned invalid view")
		}
		if view.Avail() == 0 {
			break
		}
		got := view.Bytes()
		if want := int(cs.chunkSize) - len(data); len(got) > want {
			got = got[:want]
		}
		data = append(data, got...)
	}

	c := &chunk{data: data}
	cs.chunks.Add(index, c)
	return c, nil
}
