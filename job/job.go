// Package job implements resumable signature, delta and patch jobs.
//
// A job is a pull-based state machine: the caller hands it an input
// cursor and an output cursor, and Step consumes and produces as much
// as it can before returning. Blocked means the job needs more input
// or more output room; the caller refills or drains and steps again.
// Jobs never hold on to caller buffers between steps, and never
// block: patch jobs read the base file synchronously through a Source.
package job

import (
	"fmt"

	"github.com/itchio/rstream/cursor"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/source"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

type Kind int

const (
	// KindSignature reads a base file and writes its signature
	KindSignature Kind = iota
	// KindLoadSignature reads a signature into memory, writing nothing
	KindLoadSignature
	// KindDelta reads a new file and writes a delta against a signature
	KindDelta
	// KindPatch reads a delta and writes the new file
	KindPatch
)

func (k Kind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindLoadSignature:
		return "loadsig"
	case KindDelta:
		return "delta"
	case KindPatch:
		return "patch"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type State int

const (
	StateCreated State = iota
	StateRunning
	StateBlocked
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// a stateFunc does a bounded amount of work. It returns Running to be
// called again (possibly after j.statefn changed), Blocked when it
// cannot go on without more input or output room, or a failure.
type stateFunc func(j *Job) Result

type Job struct {
	kind     Kind
	state    State
	statefn  stateFunc
	err      *Error
	released bool

	// only set for the duration of a step
	in  *cursor.Cursor
	out *cursor.Cursor
	eof bool

	scoop []byte
	tube  []byte

	stats Stats

	sig   *signature.Signature
	delta *deltaState
	patch *patchState
	src   source.Source
}

func newJob(kind Kind, initial stateFunc) *Job {
	return &Job{
		kind:    kind,
		state:   StateCreated,
		statefn: initial,
	}
}

// BeginSignature starts a job that reads a base file and writes its
// signature. strongLen 0 picks the full strong sum size, magic 0 picks
// BLAKE2.
func BeginSignature(blockLen int, strongLen int, magic wire.Magic) (*Job, error) {
	if magic == 0 {
		magic = wire.Blake2SigMagic
	}

	sig, err := signature.New(magic, blockLen, strongLen)
	if err != nil {
		return nil, newError(ParamError, err)
	}

	j := newJob(KindSignature, sigHeader)
	j.sig = sig
	j.stats.BlockLen = sig.BlockLen
	return j, nil
}

// BeginLoadSignature starts a job that parses a signature stream into
// the returned Signature. The signature must be indexed before it can
// be used for a delta, and released by the caller.
func BeginLoadSignature() (*Job, *signature.Signature) {
	j := newJob(KindLoadSignature, loadHeader)
	j.sig = &signature.Signature{}
	return j, j.sig
}

// BeginDelta starts a job that reads a new file and writes a delta
// against sig, which must be indexed. sig must outlive the job.
func BeginDelta(sig *signature.Signature) (*Job, error) {
	if sig == nil {
		return nil, newError(ParamError, errors.New("nil signature"))
	}
	if !sig.Indexed() {
		return nil, newError(ParamError, signature.ErrNotIndexed)
	}

	j := newJob(KindDelta, deltaHeader)
	j.sig = sig
	j.delta = newDeltaState(sig)
	j.stats.BlockLen = sig.BlockLen
	j.stats.SigBlocks = int64(sig.Len())
	return j, nil
}

// BeginPatch starts a job that reads a delta and writes the new file,
// fetching base bytes from src. src may be nil and bound later with
// SetSource, as long as that happens before the first copy command.
func BeginPatch(src source.Source) (*Job, error) {
	j := newJob(KindPatch, patchHeader)
	j.patch = &patchState{}
	j.src = src
	return j, nil
}

// SetSource rebinds the base source of a patch job. The new binding
// is used from the next step on, and stays until replaced.
func (j *Job) SetSource(src source.Source) error {
	if j.released {
		return ErrReleased
	}
	if j.kind != KindPatch {
		return errors.Errorf("%s jobs have no source", j.kind)
	}
	j.src = src
	return nil
}

func (j *Job) Kind() Kind {
	return j.kind
}

func (j *Job) State() State {
	return j.state
}

// Stats returns a snapshot of the job's counters.
func (j *Job) Stats() Stats {
	return j.stats
}

// Err returns the reason the job failed, as an *Error, or nil.
func (j *Job) Err() error {
	if j.err == nil {
		return nil
	}
	return j.err
}

// Step runs the job on the given cursors until it completes, fails,
// or cannot progress. eof tells the job no input will follow what is
// in `in`. Only in.Pos and out.Pos are modified.
func (j *Job) Step(in *cursor.Cursor, out *cursor.Cursor, eof bool) Result {
	if j.released {
		return ParamError
	}

	switch j.state {
	case StateDone, StateFailed:
		return j.fail(ParamError, errors.Wrapf(ErrTerminal, "stepped after %s", j.state))
	}

	if in == nil || out == nil {
		return j.fail(ParamError, ErrNilCursor)
	}
	if err := in.Validate(); err != nil {
		return j.fail(ParamError, errors.Wrap(err, "input cursor"))
	}
	if err := out.Validate(); err != nil {
		return j.fail(ParamError, errors.Wrap(err, "output cursor"))
	}

	j.in, j.out, j.eof = in, out, eof
	inPos, outPos := in.Pos, out.Pos
	defer func() {
		j.stats.InBytes += int64(in.Pos - inPos)
		j.stats.OutBytes += int64(out.Pos - outPos)
		j.in, j.out = nil, nil
	}()

	j.state = StateRunning
	for {
		if !j.drain() {
			j.state = StateBlocked
			return Blocked
		}

		if j.statefn == nil {
			j.state = StateDone
			return Done
		}

		res := j.statefn(j)
		switch res {
		case Running:
			continue
		case Blocked:
			j.drain()
			j.state = StateBlocked
			return Blocked
		case Done:
			j.statefn = nil
		default:
			j.state = StateFailed
			return res
		}
	}
}

// StepWithSource binds src, when non-nil, then steps the job. The
// binding stays for later steps.
func (j *Job) StepWithSource(in *cursor.Cursor, out *cursor.Cursor, eof bool, src source.Source) Result {
	if src != nil {
		err := j.SetSource(src)
		if err != nil {
			if j.released {
				return ParamError
			}
			return j.fail(ParamError, err)
		}
	}
	return j.Step(in, out, eof)
}

// fail records the first failure and moves the job to StateFailed.
func (j *Job) fail(r Result, err error) Result {
	if j.err == nil {
		j.err = newError(r, err)
	}
	j.state = StateFailed
	j.statefn = nil
	return r
}

// Release frees the job. It must be called exactly once per job,
// whatever state it's in.
func (j *Job) Release() error {
	if j.released {
		return ErrReleased
	}
	j.released = true
	j.statefn = nil
	j.scoop = nil
	j.tube = nil
	j.delta = nil
	j.patch = nil
	j.src = nil
	// a loaded signature belongs to the caller from Begin on
	j.sig = nil
	return nil
}

// Released returns true once Release was called.
func (j *Job) Released() bool {
	return j.released
}

func (j *Job) String() string {
	return fmt.Sprintf("%s job (%s)", j.kind, j.state)
}
