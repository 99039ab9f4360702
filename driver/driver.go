// Package driver runs jobs to completion over plain readers and
// writers: it refills the input buffer without losing unconsumed
// bytes, drains the output buffer after every step, and collects
// statistics along the way.
package driver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/itchio/headway/state"
	"github.com/itchio/rstream/counter"
	"github.com/itchio/rstream/cursor"
	"github.com/itchio/rstream/job"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

const (
	// DefaultBufferSize is used for buffers the caller didn't provide
	DefaultBufferSize = 1024 * 1024
	// MaxBufferSize bounds caller-provided buffers
	MaxBufferSize = 1024 * 1024 * 1024
)

// ErrStuck is returned when a job keeps reporting Blocked while it has
// all the input and output room it could ask for.
var ErrStuck = errors.New("job is blocked but cannot make progress")

type Params struct {
	// Tag names the job in logs
	Tag string

	// InBuf and OutBuf are reused for every step.
	// optional, DefaultBufferSize is allocated if nil
	InBuf []byte
	// optional
	OutBuf []byte

	// InputSize is how many bytes the reader is expected to yield,
	// used to report progress
	// optional
	InputSize int64

	// optional
	Consumer *state.Consumer
	// optional, counters accumulate across runs
	Stats *Statistics
	// optional
	Metrics *Metrics
	// optional, fills Stats.OutputHash
	HashOutput bool
}

func (p *Params) validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Tag, validation.Required),
		validation.Field(&p.InBuf, validation.Length(1, MaxBufferSize)),
		validation.Field(&p.OutBuf, validation.Length(1, MaxBufferSize)),
		validation.Field(&p.InputSize, validation.Min(int64(0))),
	)
}

// Run steps j until it's done, reading input from r and writing output
// to w. A nil w discards output. Run does not release j.
func Run(ctx context.Context, j *job.Job, r io.Reader, w io.Writer, params Params) (*Statistics, error) {
	err := params.validate()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if r == nil {
		return nil, errors.New("driver: nil input reader")
	}

	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	stats := params.Stats
	if stats == nil {
		stats = &Statistics{}
	}
	if params.InBuf == nil {
		params.InBuf = make([]byte, DefaultBufferSize)
	}
	if params.OutBuf == nil {
		params.OutBuf = make([]byte, DefaultBufferSize)
	}

	var onRead counter.Callback
	if params.InputSize > 0 {
		consumer.ProgressLabel(fmt.Sprintf("%s: %s...", params.Tag, humanize.IBytes(uint64(params.InputSize))))
		onRead = func(count int64) {
			consumer.Progress(float64(count) / float64(params.InputSize))
		}
	}
	cr := counter.NewReader(r, onRead)

	var hasher *blake3.Hasher
	if params.HashOutput {
		hasher = blake3.New()
		if w == nil {
			w = hasher
		} else {
			w = io.MultiWriter(w, hasher)
		}
	}
	cw := counter.NewWriter(w, nil)

	in := cursor.Empty(params.InBuf)
	out := cursor.New(params.OutBuf)
	eof := false

	startTime := time.Now()
	stats.begin()
	consumer.Debugf("%s: starting %s", params.Tag, j)

	fail := func(err error) (*Statistics, error) {
		stats.end()
		params.Metrics.observeJob(j.Kind(), "failed", time.Since(startTime).Seconds())
		consumer.Warnf("%s: %+v", params.Tag, err)
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(errors.WithStack(err))
		}

		in.Compact()
		read := 0
		if !eof && len(in.Free()) > 0 {
			n, err := cr.Read(in.Free())
			in.Fill(n)
			read = n
			if err != nil {
				if err != io.EOF {
					return fail(errors.Wrapf(err, "%s: reading input", params.Tag))
				}
				eof = true
			}
		}

		out.Reset()
		before := in.Avail()
		res := j.Step(in, out, eof)
		consumed := before - in.Avail()
		produced := out.Pos

		if produced > 0 {
			_, err := cw.Write(out.Written())
			if err != nil {
				return fail(errors.Wrapf(err, "%s: writing output", params.Tag))
			}
		}

		stats.record(consumed, in.Avail(), produced)
		params.Metrics.observeStep(j.Kind(), res, consumed, produced)

		switch res {
		case job.Done:
			stats.end()
			if hasher != nil {
				stats.OutputHash = hasher.Sum(nil)
			}
			params.Metrics.observeJob(j.Kind(), "done", time.Since(startTime).Seconds())
			consumer.Debugf("%s: done after %d iterations, %s", params.Tag, stats.Iterations, j.Stats())
			return stats, nil
		case job.Blocked:
			if consumed == 0 && produced == 0 && read == 0 && (eof || len(in.Free()) == 0) {
				return fail(&job.Error{Result: job.InternalError, Err: errors.Wrapf(ErrStuck, "%s after %d iterations", j, stats.Iterations)})
			}
		default:
			err := j.Err()
			if err == nil {
				cause := errors.Errorf("%s failed without a reason", j)
				if j.Released() {
					cause = errors.WithStack(job.ErrReleased)
				}
				err = &job.Error{Result: res, Err: cause}
			}
			return fail(err)
		}
	}
}
