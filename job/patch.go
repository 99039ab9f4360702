package job

import (
	"math"

	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

type patchState struct {
	cmd command
	op  byte

	// bytes left to produce for the current literal or copy
	remaining int64
	copyPos   int64
}

func patchHeader(j *Job) Result {
	header := j.gather(wire.MagicSize, false)
	if header == nil {
		return j.starved("delta header")
	}

	err := wire.ExpectMagic(header, wire.DeltaMagic)
	if err != nil {
		return j.fail(BadMagic, err)
	}

	j.statefn = patchOp
	return Running
}

func patchOp(j *Job) Result {
	p := j.patch

	op := j.gather(1, false)
	if op == nil {
		return j.starved("delta (no end command)")
	}

	p.op = op[0]
	p.cmd = decodeOp(p.op)
	switch p.cmd.kind {
	case cmdEnd:
		return Done
	case cmdBogus:
		return j.fail(Corrupt, errors.Errorf("bogus command %#02x", p.op))
	case cmdLiteral:
		if p.cmd.immediate > 0 {
			j.beginLiteral(p.cmd.immediate, 1)
			return Running
		}
	}

	j.statefn = patchParams
	return Running
}

func patchParams(j *Job) Result {
	p := j.patch

	params := j.gather(p.cmd.paramsSize(), false)
	if params == nil {
		return j.starved("command parameters")
	}
	cmdBytes := int64(1 + len(params))

	first := wire.ReadInt(params, p.cmd.size1)
	if first < 0 {
		return j.fail(Corrupt, errors.Errorf("command %#02x: parameter out of range", p.op))
	}

	if p.cmd.kind == cmdLiteral {
		j.beginLiteral(first, cmdBytes)
		return Running
	}

	length := wire.ReadInt(params[p.cmd.size1:], p.cmd.size2)
	if length < 0 || first > math.MaxInt64-length {
		return j.fail(Corrupt, errors.Errorf("command %#02x: copy of %d bytes at %d out of range", p.op, length, first))
	}

	p.copyPos = first
	p.remaining = length
	j.stats.CopyCmds++
	j.stats.CopyBytes += length
	j.stats.CopyCmdBytes += cmdBytes
	j.statefn = patchCopy
	return Running
}

func (j *Job) beginLiteral(length int64, cmdBytes int64) {
	j.patch.remaining = length
	j.stats.LitCmds++
	j.stats.LitBytes += length
	j.stats.LitCmdBytes += cmdBytes
	j.statefn = patchLiteral
}

// patchLiteral streams literal bytes straight from input to output.
func patchLiteral(j *Job) Result {
	p := j.patch

	for p.remaining > 0 {
		if j.out.Avail() == 0 {
			return Blocked
		}
		if j.in.Avail() == 0 {
			return j.starved("literal")
		}

		n := p.remaining
		if avail := int64(j.in.Avail()); avail < n {
			n = avail
		}
		if avail := int64(j.out.Avail()); avail < n {
			n = avail
		}

		copy(j.out.Bytes(), j.in.Bytes()[:n])
		j.in.Advance(int(n))
		j.out.Advance(int(n))
		p.remaining -= n
	}

	j.statefn = patchOp
	return Running
}

// patchCopy fetches base bytes from the source, never asking for more
// than fits in the output, so long copies span several steps.
func patchCopy(j *Job) Result {
	p := j.patch

	if p.remaining > 0 && j.src == nil {
		return j.fail(ParamError, ErrMissingSource)
	}

	for p.remaining > 0 {
		if j.out.Avail() == 0 {
			return Blocked
		}

		want := j.out.Avail()
		if int64(want) > p.remaining {
			want = int(p.remaining)
		}

		view, err := j.src.Fetch(p.copyPos, want)
		j.stats.Fetches++
		if err != nil {
			return j.fail(IOError, errors.Wrapf(err, "fetching %d base bytes at %d", want, p.copyPos))
		}
		if err := view.Validate(); err != nil {
			return j.fail(InternalError, errors.Wrap(err, "source returned an invalid view"))
		}

		n := view.Avail()
		if n > want {
			return j.fail(InternalError, errors.Errorf("source returned %d bytes, %d were asked for", n, want))
		}
		if n == 0 {
			return j.fail(InputEnded, errors.Errorf("base ends before %d", p.copyPos))
		}

		copy(j.out.Bytes(), view.Bytes())
		j.out.Advance(n)
		p.copyPos += int64(n)
		p.remaining -= int64(n)
	}

	j.statefn = patchOp
	return Running
}
