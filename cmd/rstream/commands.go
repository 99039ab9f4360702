package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/itchio/headway/state"
	"github.com/itchio/rstream/compress"
	"github.com/itchio/rstream/cursor"
	"github.com/itchio/rstream/driver"
	"github.com/itchio/rstream/eos"
	"github.com/itchio/rstream/eos/option"
	"github.com/itchio/rstream/job"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/source"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

type env struct {
	opts     *options
	stdout   io.Writer
	consumer *state.Consumer
	metrics  *driver.Metrics
}

func (e *env) params(tag string, inputSize int64) driver.Params {
	params := e.opts.params()
	params.Tag = tag
	params.InputSize = inputSize
	params.Consumer = e.consumer
	params.Metrics = e.metrics
	params.Stats = &driver.Statistics{}
	return params
}

func (e *env) report(stats *driver.Statistics) {
	if !e.opts.stats || stats == nil {
		return
	}
	fmt.Fprintln(e.stdout, stats.String())
}

func runSignature(ctx context.Context, e *env, args []string) error {
	base, baseSize, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer base.Close()

	sigFile, err := os.Create(args[1])
	if err != nil {
		return errors.WithStack(err)
	}
	defer sigFile.Close()

	sigWriter, err := compress.NewWriter(sigFile, e.opts.tag, e.opts.quality)
	if err != nil {
		return err
	}
	defer sigWriter.Close()

	settings := driver.SignatureSettings{
		BlockLen:  e.opts.blockSize,
		BaseSize:  baseSize,
		StrongLen: e.opts.strongLen,
		Magic:     e.opts.magic,
	}
	stats, err := driver.GenerateSignature(ctx, base, sigWriter, settings, e.params(args[0], baseSize))
	if err != nil {
		return err
	}

	err = sigWriter.Close()
	if err != nil {
		return errors.WithStack(err)
	}
	e.report(stats)
	return errors.WithStack(sigFile.Close())
}

func runDelta(ctx context.Context, e *env, args []string) error {
	newFile, newSize, err := openInput(args[1])
	if err != nil {
		return err
	}
	defer newFile.Close()

	sig, err := e.deltaSignature(ctx, args[0])
	if err != nil {
		return err
	}
	defer sig.Release()

	deltaFile, err := os.Create(args[2])
	if err != nil {
		return errors.WithStack(err)
	}
	defer deltaFile.Close()

	deltaWriter, err := compress.NewWriter(deltaFile, e.opts.tag, e.opts.quality)
	if err != nil {
		return err
	}
	defer deltaWriter.Close()

	params := e.params(args[1], newSize)
	stats, err := driver.GenerateDeltaFrom(ctx, sig, newFile, deltaWriter, params)
	if err != nil {
		return err
	}

	err = deltaWriter.Close()
	if err != nil {
		return errors.WithStack(err)
	}
	e.report(stats)
	return errors.WithStack(deltaFile.Close())
}

// deltaSignature loads the signature file at name, or computes it
// in memory when name is the base file itself.
func (e *env) deltaSignature(ctx context.Context, name string) (*signature.Signature, error) {
	f, size, err := openInput(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if e.opts.fromBase {
		settings := driver.SignatureSettings{
			BlockLen:  e.opts.blockSize,
			BaseSize:  size,
			StrongLen: e.opts.strongLen,
			Magic:     e.opts.magic,
		}
		sig, _, err := driver.BuildSignature(ctx, f, settings, e.params(name, size))
		return sig, err
	}

	r, err := compress.NewReader(f, e.opts.tag)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sig, _, err := driver.LoadSignature(ctx, r, e.params(name, 0))
	return sig, err
}

func runPatch(ctx context.Context, e *env, args []string) error {
	baseFile, err := eos.Open(args[0], option.WithConsumer(e.consumer))
	if err != nil {
		return err
	}
	defer baseFile.Close()

	base := source.FromReaderAt(baseFile)
	if e.opts.cacheChunks > 0 {
		base, err = source.NewCached(base, source.DefaultChunkSize, e.opts.cacheChunks)
		if err != nil {
			return err
		}
	}

	deltaFile, deltaSize, err := openInput(args[1])
	if err != nil {
		return err
	}
	defer deltaFile.Close()

	deltaReader, err := compress.NewReader(deltaFile, e.opts.tag)
	if err != nil {
		return err
	}
	defer deltaReader.Close()

	outFile, err := os.Create(args[2])
	if err != nil {
		return errors.WithStack(err)
	}
	defer outFile.Close()

	params := e.params(args[1], 0)
	if e.opts.tag == compress.None {
		params.InputSize = deltaSize
	}
	params.HashOutput = true

	stats, err := driver.GeneratePatch(ctx, base, deltaReader, outFile, params)
	if err != nil {
		return err
	}
	e.report(stats)
	if e.opts.stats {
		fmt.Fprintf(e.stdout, "base seeks: %s\n", stats.Seeks.String())
	}
	fmt.Fprintf(e.stdout, "%s  %s\n", hex.EncodeToString(stats.OutputHash), args[2])
	return errors.WithStack(outFile.Close())
}

func runInfo(ctx context.Context, e *env, args []string) error {
	f, size, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := compress.NewReader(f, e.opts.tag)
	if err != nil {
		return err
	}
	defer r.Close()

	rc := wire.NewReadContext(r)
	magic, err := rc.ReadMagic()
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "%s: %s, %s on disk\n", args[0], magic, humanize.IBytes(uint64(size)))

	switch {
	case magic.IsSignature():
		return signatureInfo(e, rc, magic)
	case magic == wire.DeltaMagic:
		return deltaInfo(ctx, e, rc, magic)
	default:
		return errors.Wrapf(wire.ErrInvalidMagic, "%s", args[0])
	}
}

func signatureInfo(e *env, rc *wire.ReadContext, magic wire.Magic) error {
	blockLen, err := rc.ReadInt(4)
	if err != nil {
		return err
	}
	strongLen, err := rc.ReadInt(4)
	if err != nil {
		return err
	}
	err = signature.CheckParams(magic, int(blockLen), int(strongLen))
	if err != nil {
		return err
	}

	recordsSize, err := io.Copy(io.Discard, rc.Reader())
	if err != nil {
		return errors.WithStack(err)
	}

	recordSize := int64(signature.WeakSize) + strongLen
	fmt.Fprintf(e.stdout, "block size: %s, strong sum: %d bytes\n", humanize.IBytes(uint64(blockLen)), strongLen)
	fmt.Fprintf(e.stdout, "blocks: %d, covering up to %s\n",
		recordsSize/recordSize, humanize.IBytes(uint64(recordsSize/recordSize*blockLen)))
	if recordsSize%recordSize != 0 {
		return errors.Errorf("truncated signature: %d trailing bytes", recordsSize%recordSize)
	}
	return nil
}

// deltaInfo replays the delta against a base made of zeroes, which is
// enough to count its commands.
func deltaInfo(ctx context.Context, e *env, rc *wire.ReadContext, magic wire.Magic) error {
	var zeroes []byte
	zero := source.Func(func(pos int64, length int) (cursor.Cursor, error) {
		if cap(zeroes) < length {
			zeroes = make([]byte, length)
		}
		return cursor.Cursor{Buf: zeroes, Pos: 0, Limit: length}, nil
	})

	j, err := job.BeginPatch(zero)
	if err != nil {
		return err
	}
	defer j.Release()

	// the magic was consumed already, give it back
	header := make([]byte, wire.MagicSize)
	wire.PutMagic(header, magic)
	r := io.MultiReader(bytes.NewReader(header), rc.Reader())

	params := e.params("info", 0)
	_, err = driver.Run(ctx, j, r, nil, params)
	if err != nil {
		return err
	}

	js := j.Stats()
	fmt.Fprintf(e.stdout, "produces %s: %s\n", humanize.IBytes(uint64(js.OutBytes)), js.String())
	return nil
}

func openInput(name string) (*os.File, int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.WithStack(err)
	}
	return f, stat.Size(), nil
}
