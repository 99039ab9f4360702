package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/itchio/rstream/wtest"
	"github.com/stretchr/testify/assert"
	"github.com/zeebo/blake3"
)

type fixture struct {
	dir      string
	base     []byte
	newData  []byte
	basePath string
	newPath  string
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{dir: t.TempDir()}
	f.base = wtest.RandBytes(t, 0x51, 300*1024)
	f.newData = wtest.Insert(f.base, 100*1024, []byte("a few new bytes"))
	f.newData = wtest.Remove(f.newData, 200*1024, 512)

	f.basePath = f.path("base.bin")
	f.newPath = f.path("new.bin")
	wtest.Must(t, os.WriteFile(f.basePath, f.base, 0644))
	wtest.Must(t, os.WriteFile(f.newPath, f.newData, 0644))
	return f
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	err := run(context.Background(), args, stdout, stderr)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []string{"none", "brotli", "lz4", "zstd"} {
		for _, hash := range []string{"md4", "blake2"} {
			t.Run(compression+"-"+hash, func(t *testing.T) {
				f := newFixture(t)
				flags := []string{"--compress", compression, "--hash", hash, "--buffer-size", "16KiB"}

				_, err := runCLI(t, append([]string{"signature", f.basePath, f.path("sig")}, flags...)...)
				wtest.Mustf(t, err, "signature with %v", flags)

				_, err = runCLI(t, append([]string{"delta", f.path("sig"), f.newPath, f.path("delta")}, flags...)...)
				wtest.Mustf(t, err, "delta with %v", flags)

				out, err := runCLI(t, append([]string{"patch", f.basePath, f.path("delta"), f.path("out")}, flags...)...)
				wtest.Mustf(t, err, "patch with %v", flags)

				res, err := os.ReadFile(f.path("out"))
				wtest.Must(t, err)
				assert.Equal(t, f.newData, res)

				sum := blake3.Sum256(f.newData)
				assert.Contains(t, out, hex.EncodeToString(sum[:]))
			})
		}
	}
}

func TestPatchRemoteBase(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "base.bin", time.Time{}, bytes.NewReader(f.base))
	}))
	defer server.Close()

	_, err := runCLI(t, "signature", "--block-size", "1024", f.basePath, f.path("sig"))
	wtest.Must(t, err)
	_, err = runCLI(t, "delta", f.path("sig"), f.newPath, f.path("delta"))
	wtest.Must(t, err)

	out, err := runCLI(t, "patch", "--cache-chunks", "4", "--stats", server.URL+"/base.bin", f.path("delta"), f.path("out"))
	wtest.Must(t, err)
	assert.Contains(t, out, "base seeks")

	res, err := os.ReadFile(f.path("out"))
	wtest.Must(t, err)
	assert.Equal(t, f.newData, res)
}

func TestInfo(t *testing.T) {
	f := newFixture(t)

	_, err := runCLI(t, "signature", "--block-size", "2048", "--strong-len", "8", f.basePath, f.path("sig"))
	wtest.Must(t, err)

	out, err := runCLI(t, "info", f.path("sig"))
	wtest.Must(t, err)
	assert.Contains(t, out, "block size: 2.0 KiB, strong sum: 8 bytes")
	assert.Contains(t, out, "blocks: 150")

	_, err = runCLI(t, "delta", f.path("sig"), f.newPath, f.path("delta"))
	wtest.Must(t, err)

	out, err = runCLI(t, "info", f.path("delta"))
	wtest.Must(t, err)
	assert.Contains(t, out, "literal[")
	assert.Contains(t, out, "copy[")

	_, err = runCLI(t, "info", f.newPath)
	assert.Error(t, err)
}

func TestBadInvocations(t *testing.T) {
	f := newFixture(t)

	_, err := runCLI(t)
	assert.Error(t, err)

	_, err = runCLI(t, "frobnicate")
	assert.Error(t, err)

	_, err = runCLI(t, "signature", f.basePath)
	assert.Error(t, err)

	_, err = runCLI(t, "signature", "--hash", "sha1", f.basePath, f.path("sig"))
	assert.Error(t, err)

	_, err = runCLI(t, "signature", "--compress", "gzip", f.basePath, f.path("sig"))
	assert.Error(t, err)

	_, err = runCLI(t, "signature", "--buffer-size", "lots", f.basePath, f.path("sig"))
	assert.Error(t, err)

	_, err = runCLI(t, "signature", "--strong-len", "99", f.basePath, f.path("sig"))
	assert.Error(t, err)

	_, err = runCLI(t, "patch", f.basePath, f.path("missing"), f.path("out"))
	assert.Error(t, err)

	_, err = runCLI(t, "patch", "ftp://example.org/base.bin", f.newPath, f.path("out"))
	assert.Error(t, err)
}

func TestDeltaFromBase(t *testing.T) {
	f := newFixture(t)

	_, err := runCLI(t, "delta", "--from-base", "--compress", "zstd", "--block-size", "1000", f.basePath, f.newPath, f.path("delta"))
	wtest.Mustf(t, err, "delta from base")

	_, err = runCLI(t, "patch", "--compress", "zstd", f.basePath, f.path("delta"), f.path("out"))
	wtest.Must(t, err)

	res, err := os.ReadFile(f.path("out"))
	wtest.Must(t, err)
	assert.Equal(t, f.newData, res)

	// the base isn't a signature file
	_, err = runCLI(t, "delta", f.basePath, f.newPath, f.path("delta"))
	assert.Error(t, err)
}

func TestFailedSignature(t *testing.T) {
	f := newFixture(t)

	for _, compression := range []string{"none", "brotli", "lz4", "zstd"} {
		_, err := runCLI(t, "signature", "--compress", compression, "--strong-len", "99", f.basePath, f.path("sig"))
		assert.Error(t, err, compression)
	}

	_, err := runCLI(t, "signature", "--compress", "brotli", f.basePath, f.path("sig"))
	wtest.Must(t, err)
	_, err = runCLI(t, "delta", "--compress", "brotli", f.path("sig"), f.newPath, f.path("delta"))
	wtest.Must(t, err)
}
