// Package bridge exposes jobs and signatures through opaque integer
// handles and flat calls, for hosts that cannot hold Go pointers (a
// foreign runtime, a process boundary). Handles are never reused, so a
// stale handle can never reach another job.
package bridge

import (
	"sync"

	"github.com/itchio/headway/state"
	"github.com/itchio/rstream/cursor"
	"github.com/itchio/rstream/job"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/source"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

// Handle refers to a job or a signature in a Registry. 0 is never
// a valid handle.
type Handle uint64

var (
	ErrUnknownJob       = errors.New("unknown or freed job handle")
	ErrUnknownSignature = errors.New("unknown or freed signature handle")
)

type Registry struct {
	mu   sync.Mutex
	last Handle

	jobs map[Handle]*job.Job
	sigs map[Handle]*signature.Signature

	consumer *state.Consumer
}

func NewRegistry(consumer *state.Consumer) *Registry {
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	return &Registry{
		jobs:     make(map[Handle]*job.Job),
		sigs:     make(map[Handle]*signature.Signature),
		consumer: consumer,
	}
}

func paramError(err error) error {
	return &job.Error{Result: job.ParamError, Err: err}
}

func (r *Registry) addJob(j *job.Job) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.jobs[r.last] = j
	return r.last
}

func (r *Registry) addSignature(sig *signature.Signature) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.sigs[r.last] = sig
	return r.last
}

func (r *Registry) job(h Handle) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[h]
	if !ok {
		return nil, paramError(errors.Wrapf(ErrUnknownJob, "handle %d", h))
	}
	return j, nil
}

func (r *Registry) signature(h Handle) (*signature.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.sigs[h]
	if !ok {
		return nil, paramError(errors.Wrapf(ErrUnknownSignature, "handle %d", h))
	}
	return sig, nil
}

// SignatureBegin starts a signature job with MD4 strong sums of full
// length.
func (r *Registry) SignatureBegin(blockSize int) (Handle, error) {
	j, err := job.BeginSignature(blockSize, signature.MD4Length, wire.MD4SigMagic)
	if err != nil {
		return 0, err
	}
	return r.addJob(j), nil
}

// LoadSignatureBegin starts a job loading a signature. Both handles
// must be freed.
func (r *Registry) LoadSignatureBegin() (jobHandle Handle, sigHandle Handle) {
	j, sig := job.BeginLoadSignature()
	return r.addJob(j), r.addSignature(sig)
}

func (r *Registry) BuildSignatureHashTable(h Handle) error {
	sig, err := r.signature(h)
	if err != nil {
		return err
	}

	err = sig.BuildIndex()
	if err != nil {
		return paramError(err)
	}
	return nil
}

// DeltaBegin starts a delta job against an indexed signature. The
// signature must not be freed before the job.
func (r *Registry) DeltaBegin(h Handle) (Handle, error) {
	sig, err := r.signature(h)
	if err != nil {
		return 0, err
	}

	j, err := job.BeginDelta(sig)
	if err != nil {
		return 0, err
	}
	return r.addJob(j), nil
}

// PatchBegin starts a patch job. src may be nil if every IterateJob
// call passes one.
func (r *Registry) PatchBegin(src source.Source) (Handle, error) {
	j, err := job.BeginPatch(src)
	if err != nil {
		return 0, err
	}
	return r.addJob(j), nil
}

// IterateJob steps a job over inBuf[inPos:inLimit] and
// outBuf[outPos:outLimit], and returns the new positions. If src is
// not nil, it replaces the patch job's source from this call on.
// Positions are only advanced on Done and Blocked.
func (r *Registry) IterateJob(h Handle,
	inBuf []byte, inPos int, inLimit int, lastInput bool,
	outBuf []byte, outPos int, outLimit int,
	src source.Source,
) (newInPos int, newOutPos int, res job.Result) {
	j, err := r.job(h)
	if err != nil {
		r.consumer.Warnf("IterateJob: %v", err)
		return inPos, outPos, job.ParamError
	}

	in := &cursor.Cursor{Buf: inBuf, Pos: inPos, Limit: inLimit}
	out := &cursor.Cursor{Buf: outBuf, Pos: outPos, Limit: outLimit}
	res = j.StepWithSource(in, out, lastInput, src)
	if res.Failed() {
		r.consumer.Debugf("IterateJob: %s failed: %v", j, j.Err())
		return inPos, outPos, res
	}
	return in.Pos, out.Pos, res
}

// JobError returns why a job failed, or nil.
func (r *Registry) JobError(h Handle) error {
	j, err := r.job(h)
	if err != nil {
		return err
	}
	return j.Err()
}

func (r *Registry) JobStats(h Handle) (job.Stats, error) {
	j, err := r.job(h)
	if err != nil {
		return job.Stats{}, err
	}
	return j.Stats(), nil
}

// FreeJob releases a job and forgets its handle.
func (r *Registry) FreeJob(h Handle) error {
	r.mu.Lock()
	j, ok := r.jobs[h]
	delete(r.jobs, h)
	r.mu.Unlock()

	if !ok {
		return paramError(errors.Wrapf(ErrUnknownJob, "freeing handle %d", h))
	}
	return j.Release()
}

// FreeSignature releases a loaded signature and forgets its handle.
func (r *Registry) FreeSignature(h Handle) error {
	r.mu.Lock()
	sig, ok := r.sigs[h]
	delete(r.sigs, h)
	r.mu.Unlock()

	if !ok {
		return paramError(errors.Wrapf(ErrUnknownSignature, "freeing handle %d", h))
	}
	return sig.Release()
}

// Live returns the number of jobs and signatures not freed yet.
func (r *Registry) Live() (jobs int, sigs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs), len(r.sigs)
}
