package driver

import (
	"bytes"
	"context"
	"io"

	"github.com/itchio/headway/state"
	"github.com/itchio/rstream/job"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/source"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

// SignatureSettings picks the shape of a new signature.
type SignatureSettings struct {
	// BlockLen 0 picks signature.OptimalBlockLen of BaseSize
	BlockLen int
	// BaseSize is the size of the base file, -1 if unknown
	BaseSize int64
	// StrongLen 0 picks the full strong sum size
	StrongLen int
	// Magic 0 picks BLAKE2 strong sums
	Magic wire.Magic
}

func (ss SignatureSettings) blockLen() int {
	if ss.BlockLen > 0 {
		return ss.BlockLen
	}
	return signature.OptimalBlockLen(ss.BaseSize)
}

func prepare(params *Params) {
	if params.Consumer == nil {
		params.Consumer = &state.Consumer{}
	}
	if params.Stats == nil {
		params.Stats = &Statistics{}
	}
	if params.Tag == "" {
		params.Tag = "rstream"
	}
}

func release(consumer *state.Consumer, what string, rel func() error) {
	err := rel()
	if err != nil {
		consumer.Warnf("Error freeing %s: %+v", what, err)
	}
}

// GenerateSignature writes the signature of base to sigWriter.
func GenerateSignature(ctx context.Context, base io.Reader, sigWriter io.Writer, settings SignatureSettings, params Params) (*Statistics, error) {
	prepare(&params)

	j, err := job.BeginSignature(settings.blockLen(), settings.StrongLen, settings.Magic)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer release(params.Consumer, "signature job", j.Release)

	params.Tag = "signature - " + params.Tag
	return Run(ctx, j, base, sigWriter, params)
}

// LoadSignature reads a signature and indexes it, ready for deltas.
// The caller must release the returned signature.
func LoadSignature(ctx context.Context, sigReader io.Reader, params Params) (*signature.Signature, *Statistics, error) {
	prepare(&params)
	return loadSignature(ctx, sigReader, 0, params)
}

// BuildSignature computes the signature of base in memory and indexes
// it. Unlike a loaded signature, it knows the size of the last block,
// so a short tail of the base only matches a tail of the same size.
// The caller must release the returned signature.
func BuildSignature(ctx context.Context, base io.Reader, settings SignatureSettings, params Params) (*signature.Signature, *Statistics, error) {
	prepare(&params)

	j, err := job.BeginSignature(settings.blockLen(), settings.StrongLen, settings.Magic)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	defer release(params.Consumer, "signature job", j.Release)

	tag := params.Tag
	sigBuf := new(bytes.Buffer)
	params.Tag = "build signature - " + tag
	stats, err := Run(ctx, j, base, sigBuf, params)
	if err != nil {
		return nil, stats, err
	}

	params.Tag = tag
	params.InputSize = 0
	tail := int(j.Stats().InBytes % int64(settings.blockLen()))
	return loadSignature(ctx, sigBuf, tail, params)
}

func loadSignature(ctx context.Context, sigReader io.Reader, tail int, params Params) (*signature.Signature, *Statistics, error) {
	j, sig := job.BeginLoadSignature()
	defer release(params.Consumer, "load signature job", j.Release)

	tag := params.Tag
	params.Tag = "load signature - " + tag
	stats, err := Run(ctx, j, sigReader, nil, params)
	if err == nil && tail > 0 {
		err = sig.SetTail(tail)
		if err != nil {
			err = &job.Error{Result: job.InternalError, Err: errors.Wrap(err, "marking short tail")}
		}
	}
	if err == nil {
		err = sig.BuildIndex()
		if err != nil {
			err = &job.Error{Result: job.InternalError, Err: errors.Wrap(err, "building signature hash table")}
		}
	}
	if err != nil {
		release(params.Consumer, "loaded signature", sig.Release)
		return nil, stats, err
	}

	params.Consumer.Debugf("%s: loaded %s", tag, sig)
	return sig, stats, nil
}

// GenerateDeltaFrom writes the delta from sig to newFile into
// deltaWriter. sig must be indexed, and is not released.
func GenerateDeltaFrom(ctx context.Context, sig *signature.Signature, newFile io.Reader, deltaWriter io.Writer, params Params) (*Statistics, error) {
	prepare(&params)

	j, err := job.BeginDelta(sig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer release(params.Consumer, "delta job", j.Release)

	params.Tag = "delta - " + params.Tag
	return Run(ctx, j, newFile, deltaWriter, params)
}

// GenerateDelta loads the signature from sigReader, then writes the
// delta from it to newFile into deltaWriter. Both runs share the same
// statistics.
func GenerateDelta(ctx context.Context, sigReader io.Reader, newFile io.Reader, deltaWriter io.Writer, params Params) (*Statistics, error) {
	prepare(&params)

	sig, stats, err := LoadSignature(ctx, sigReader, params)
	if err != nil {
		return stats, err
	}
	defer release(params.Consumer, "loaded signature", sig.Release)

	_, err = GenerateDeltaFrom(ctx, sig, newFile, deltaWriter, params)
	return stats, err
}

// GeneratePatch applies the delta read from deltaReader to base, and
// writes the result to newFile. Fetches from base are recorded in
// the statistics.
func GeneratePatch(ctx context.Context, base source.Source, deltaReader io.Reader, newFile io.Writer, params Params) (*Statistics, error) {
	prepare(&params)

	if base == nil {
		return nil, errors.New("nil base source")
	}
	base = source.WithStats(base, &params.Stats.Seeks, params.Consumer)

	j, err := job.BeginPatch(base)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer release(params.Consumer, "patch job", j.Release)

	params.Tag = "patch - " + params.Tag
	return Run(ctx, j, deltaReader, newFile, params)
}
