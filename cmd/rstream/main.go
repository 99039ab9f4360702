// rstream computes signatures, deltas and patches of files, in the
// librsync stream formats.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/itchio/rstream/compress"
	"github.com/itchio/rstream/driver"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

const usage = `usage: rstream <command> [flags] <args>

commands:
  signature <base> <sig>           write the signature of base
  delta <sig> <new> <delta>        write a delta from a signature to new
                                   (with --from-base, <sig> is the base itself)
  patch <base> <delta> <out>       apply delta to base (path or http(s) URL)
  info <file>                      describe a signature or delta file

flags:
`

type options struct {
	blockSize   int
	strongLen   int
	hash        string
	compression string
	quality     int
	bufferSize  string
	cacheChunks int
	fromBase    bool
	verbose     bool
	stats       bool

	magic   wire.Magic
	tag     compress.Tag
	bufSize int
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.blockSize, "block-size", 0, "signature block size in bytes (0 picks one from the base size)")
	fs.IntVar(&o.strongLen, "strong-len", 0, "strong sum length in bytes (0 keeps the full sum)")
	fs.StringVar(&o.hash, "hash", "blake2", "strong sum algorithm: md4 or blake2")
	fs.StringVar(&o.compression, "compress", "none", "compression of signature and delta files: none, brotli, lz4 or zstd")
	fs.IntVar(&o.quality, "quality", 0, "compression quality (0 picks a fast default)")
	fs.StringVar(&o.bufferSize, "buffer-size", "1MiB", "size of the input and output buffers")
	fs.IntVar(&o.cacheChunks, "cache-chunks", 0, "number of 64KiB base chunks to cache when patching (0 disables caching)")
	fs.BoolVar(&o.fromBase, "from-base", false, "delta: compute the signature of a base file in memory instead of loading one")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log every step")
	fs.BoolVar(&o.stats, "stats", false, "print statistics when done")
}

func (o *options) resolve() error {
	switch o.hash {
	case "md4":
		o.magic = wire.MD4SigMagic
	case "blake2":
		o.magic = wire.Blake2SigMagic
	default:
		return errors.Errorf("unknown hash %q (expected md4 or blake2)", o.hash)
	}

	tag, err := compress.ParseTag(o.compression)
	if err != nil {
		return err
	}
	o.tag = tag

	size, err := humanize.ParseBytes(o.bufferSize)
	if err != nil {
		return errors.Wrapf(err, "parsing buffer size %q", o.bufferSize)
	}
	if size == 0 || size > driver.MaxBufferSize {
		return errors.Errorf("buffer size must be between 1 byte and %s", humanize.IBytes(driver.MaxBufferSize))
	}
	o.bufSize = int(size)

	if o.cacheChunks < 0 {
		return errors.Errorf("cache chunks must not be negative")
	}
	return nil
}

func (o *options) params() driver.Params {
	return driver.Params{
		InBuf:  make([]byte, o.bufSize),
		OutBuf: make([]byte, o.bufSize),
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rstream: %+v\n", err)
		os.Exit(1)
	}
}

type command struct {
	nargs int
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"signature": {2, runSignature},
	"delta":     {3, runDelta},
	"patch":     {3, runPatch},
	"info":      {1, runInfo},
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("rstream", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.addFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if len(args) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return errors.Errorf("unknown command %q", name)
	}

	err := fs.Parse(args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if fs.NArg() != cmd.nargs {
		fs.Usage()
		return errors.Errorf("%s: expected %d arguments, got %d", name, cmd.nargs, fs.NArg())
	}

	err = opts.resolve()
	if err != nil {
		return err
	}

	logger := newLogger(stderr, opts.verbose)
	metrics, err := driver.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	e := &env{
		opts:     &opts,
		stdout:   stdout,
		consumer: newConsumer(logger),
		metrics:  metrics,
	}
	return cmd.run(ctx, e, fs.Args())
}
