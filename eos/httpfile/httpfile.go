package httpfile

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/itchio/headway/state"
	"github.com/pkg/errors"
)

// A GetURLFunc returns a URL we can download the resource from.
// It's a function rather than a constant so that signed, expiring URLs
// can be refreshed.
type GetURLFunc func() (urlString string, err error)

// amount we're willing to download and throw away instead of opening
// a new connection
const maxDiscard int64 = 1 * 1024 * 1024 // 1MB

const DefaultReaderStaleThreshold = 10 * time.Second

var (
	ErrNotFound        = errors.New("HTTP file not found on server")
	ErrClosed          = errors.New("HTTP file is closed")
	ErrRangeNotHonored = errors.New("HTTP Range header not honored by server")
)

// HTTPFile exposes a remote resource as a random-access file. Reads are
// served by a small pool of ranged GET requests, which are reused when
// a later read lands slightly ahead of where one of them stopped.
type HTTPFile struct {
	getURL GetURLFunc
	client *http.Client

	Consumer *state.Consumer

	name   string
	size   int64
	offset int64

	ReaderStaleThreshold time.Duration

	mu       sync.Mutex
	closed   bool
	readers  map[int64]*httpReader
	lastID   int64
	requests int64
}

type httpReader struct {
	id        int64
	touchedAt time.Time
	offset    int64
	body      io.ReadCloser
	reader    *bufio.Reader
}

func (hr *httpReader) stale(threshold time.Duration) bool {
	return time.Since(hr.touchedAt) > threshold
}

func (hr *httpReader) Read(data []byte) (int, error) {
	hr.touchedAt = time.Now()
	n, err := hr.reader.Read(data)
	hr.offset += int64(n)
	return n, err
}

func (hr *httpReader) discard(n int64) error {
	hr.touchedAt = time.Now()
	discarded, err := hr.reader.Discard(int(n))
	hr.offset += int64(discarded)
	return err
}

var _ io.Seeker = (*HTTPFile)(nil)
var _ io.Reader = (*HTTPFile)(nil)
var _ io.ReaderAt = (*HTTPFile)(nil)
var _ io.Closer = (*HTTPFile)(nil)

// New issues a HEAD request to learn the size of the resource.
func New(getURL GetURLFunc, client *http.Client) (*HTTPFile, error) {
	urlStr, err := getURL()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	res, err := client.Head(urlStr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(ErrNotFound, "HEAD %s", urlStr)
		}
		return nil, errors.Errorf("expected HTTP 200, got HTTP %d for %s", res.StatusCode, urlStr)
	}

	if res.ContentLength < 0 {
		return nil, errors.Errorf("no content length for %s", urlStr)
	}

	hf := &HTTPFile{
		getURL: getURL,
		client: client,

		name:    path.Base(parsedURL.Path),
		size:    res.ContentLength,
		readers: make(map[int64]*httpReader),

		ReaderStaleThreshold: DefaultReaderStaleThreshold,
	}
	return hf, nil
}

// Size returns the length of the remote resource, as reported by HEAD.
func (hf *HTTPFile) Size() int64 {
	return hf.size
}

// NumReaders returns the number of idle readers kept for reuse.
func (hf *HTTPFile) NumReaders() int {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return len(hf.readers)
}

// NumRequests returns how many ranged GET requests were made so far.
func (hf *HTTPFile) NumRequests() int64 {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.requests
}

func (hf *HTTPFile) borrowReader(offset int64) (*httpReader, error) {
	hf.mu.Lock()
	if hf.closed {
		hf.mu.Unlock()
		return nil, ErrClosed
	}

	var best *httpReader
	var bestDiff int64 = math.MaxInt64

	for id, reader := range hf.readers {
		if reader.stale(hf.ReaderStaleThreshold) {
			delete(hf.readers, id)
			reader.body.Close()
			continue
		}

		diff := offset - reader.offset
		if diff >= 0 && diff < maxDiscard && diff < bestDiff {
			best = reader
			bestDiff = diff
		}
	}

	if best != nil {
		delete(hf.readers, best.id)
		hf.mu.Unlock()

		if bestDiff > 0 {
			hf.debugf("borrow: for %d, re-using %d by discarding %d bytes", offset, best.offset, bestDiff)
			err := best.discard(bestDiff)
			if err != nil {
				best.body.Close()
				return nil, errors.WithStack(err)
			}
		}
		return best, nil
	}

	hf.lastID++
	id := hf.lastID
	hf.requests++
	hf.mu.Unlock()

	hf.debugf("borrow: making fresh reader for offset %d", offset)

	urlStr, err := hf.getURL()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	req, err := http.NewRequest("GET", urlStr, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	res, err := hf.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if res.StatusCode == http.StatusOK && offset > 0 {
		res.Body.Close()
		return nil, errors.Wrapf(ErrRangeNotHonored, "GET %s", req.URL.Host)
	}

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		return nil, errors.Errorf("HTTP %d returned by %s (%s), bailing out", res.StatusCode, req.URL.Host, string(body))
	}

	reader := &httpReader{
		id:        id,
		touchedAt: time.Now(),
		offset:    offset,
		reader:    bufio.NewReaderSize(res.Body, int(maxDiscard)),
		body:      res.Body,
	}
	return reader, nil
}

func (hf *HTTPFile) returnReader(reader *httpReader) {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if hf.closed {
		reader.body.Close()
		return
	}

	reader.touchedAt = time.Now()
	hf.readers[reader.id] = reader
}

func (hf *HTTPFile) Stat() (os.FileInfo, error) {
	return &httpFileInfo{hf}, nil
}

func (hf *HTTPFile) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64

	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		newOffset = hf.size + offset
	case io.SeekCurrent:
		newOffset = hf.offset + offset
	default:
		return hf.offset, errors.Errorf("invalid whence value %d", whence)
	}

	if newOffset < 0 {
		newOffset = 0
	}
	if newOffset > hf.size {
		newOffset = hf.size
	}

	hf.offset = newOffset
	return hf.offset, nil
}

func (hf *HTTPFile) Read(data []byte) (int, error) {
	if hf.offset >= hf.size {
		return 0, io.EOF
	}

	reader, err := hf.borrowReader(hf.offset)
	if err != nil {
		return 0, err
	}
	defer hf.returnReader(reader)

	n, err := reader.Read(data)
	hf.offset += int64(n)
	return n, err
}

// ReadAt reads len(data) bytes at offset, or returns io.EOF along with
// a short count when the resource ends first.
func (hf *HTTPFile) ReadAt(data []byte, offset int64) (int, error) {
	if offset >= hf.size {
		return 0, io.EOF
	}

	reader, err := hf.borrowReader(offset)
	if err != nil {
		return 0, err
	}
	defer hf.returnReader(reader)

	total := 0
	for total < len(data) {
		n, err := reader.Read(data[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (hf *HTTPFile) Close() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if hf.closed {
		return nil
	}

	var firstErr error
	for id, reader := range hf.readers {
		err := reader.body.Close()
		if err != nil && firstErr == nil {
			firstErr = errors.WithStack(err)
		}
		delete(hf.readers, id)
	}

	hf.closed = true
	return firstErr
}

func (hf *HTTPFile) debugf(format string, args ...interface{}) {
	if hf.Consumer == nil {
		return
	}
	hf.Consumer.Debugf(format, args...)
}

type httpFileInfo struct {
	file *HTTPFile
}

var _ os.FileInfo = (*httpFileInfo)(nil)

func (hfi *httpFileInfo) Name() string       { return hfi.file.name }
func (hfi *httpFileInfo) Size() int64        { return hfi.file.size }
func (hfi *httpFileInfo) Mode() os.FileMode  { return 0444 }
func (hfi *httpFileInfo) ModTime() time.Time { return time.Time{} }
func (hfi *httpFileInfo) IsDir() bool        { return false }
func (hfi *httpFileInfo) Sys() interface{}   { return nil }
