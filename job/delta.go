package job

import (
	"github.com/itchio/rstream/rollsum"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

// MaxLiteral caps the length of a single literal command, and with it
// how much unmatched data a delta job keeps around.
const MaxLiteral = 64 * 1024

// deltaState scans the new file through a window buffer:
//
//	buf[litStart:pos]  unmatched bytes, to be sent as a literal
//	buf[pos:end]       the bytes covered by sum, at most one block
//	buf[end:]          read ahead, not summed yet
type deltaState struct {
	sig      *signature.Signature
	blockLen int

	buf                []byte
	litStart, pos, end int
	sum                rollsum.Rollsum

	// adjacent matches are merged into a single copy command
	copyPos, copyLen int64

	cmd []byte
}

func newDeltaState(sig *signature.Signature) *deltaState {
	return &deltaState{
		sig:      sig,
		blockLen: sig.BlockLen,
		buf:      make([]byte, 0, 2*(sig.BlockLen+MaxLiteral)),
		cmd:      make([]byte, 0, maxCommandHeader),
	}
}

func deltaHeader(j *Job) Result {
	header := make([]byte, wire.MagicSize)
	wire.PutMagic(header, wire.DeltaMagic)
	j.emit(header)

	j.statefn = deltaScan
	return Running
}

func deltaScan(j *Job) Result {
	d := j.delta

	for {
		for d.end-d.pos < d.blockLen && d.end < len(d.buf) {
			d.sum.Rollin(d.buf[d.end])
			d.end++
		}

		if d.end-d.pos < d.blockLen {
			if j.in.Avail() == 0 {
				if j.eof {
					j.statefn = deltaTail
					return Running
				}
				return Blocked
			}
			d.refill(j)
			continue
		}

		block, weakHit, err := d.sig.Find(d.sum.Digest(), d.buf[d.pos:d.end])
		if err != nil {
			return j.fail(ParamError, errors.Wrap(err, "looking up block"))
		}

		if block >= 0 {
			j.flushLiteral(d.pos)
			j.addCopy(int64(block)*int64(d.blockLen), int64(d.end-d.pos))
			d.pos = d.end
			d.litStart = d.end
			d.sum.Reset()
			return Running
		}

		if weakHit {
			j.stats.FalseMatches++
		}

		if d.end < len(d.buf) {
			d.sum.Rotate(d.buf[d.pos], d.buf[d.end])
			d.end++
		} else {
			d.sum.Rollout(d.buf[d.pos])
		}
		d.pos++

		if d.pos-d.litStart >= MaxLiteral {
			j.flushLiteral(d.pos)
			return Running
		}
	}
}

// deltaTail runs once the input ended with less than a block left. It
// looks for a short final block of the base matching the end of the
// file, then sends whatever is left as a literal.
func deltaTail(j *Job) Result {
	d := j.delta

	for d.pos < d.end {
		block, weakHit, err := d.sig.Find(d.sum.Digest(), d.buf[d.pos:d.end])
		if err != nil {
			return j.fail(ParamError, errors.Wrap(err, "looking up block"))
		}

		if block >= 0 {
			j.flushLiteral(d.pos)
			j.addCopy(int64(block)*int64(d.blockLen), int64(d.end-d.pos))
			d.pos = d.end
			d.litStart = d.end
			d.sum.Reset()
			break
		}

		if weakHit {
			j.stats.FalseMatches++
		}
		d.sum.Rollout(d.buf[d.pos])
		d.pos++

		if d.pos-d.litStart >= MaxLiteral {
			j.flushLiteral(d.pos)
			return Running
		}
	}

	j.flushLiteral(d.end)
	j.flushCopy()
	j.emit([]byte{opEnd})
	return Done
}

// refill moves input into the window, compacting it first if the
// read-ahead room got small.
func (d *deltaState) refill(j *Job) {
	if d.litStart > 0 && cap(d.buf)-len(d.buf) < cap(d.buf)/2 {
		n := copy(d.buf, d.buf[d.litStart:])
		d.buf = d.buf[:n]
		d.pos -= d.litStart
		d.end -= d.litStart
		d.litStart = 0
	}

	take := cap(d.buf) - len(d.buf)
	if avail := j.in.Avail(); avail < take {
		take = avail
	}
	d.buf = append(d.buf, j.in.Bytes()[:take]...)
	j.in.Advance(take)
}

// flushLiteral sends buf[litStart:upto] as a literal command.
func (j *Job) flushLiteral(upto int) {
	d := j.delta
	n := upto - d.litStart
	if n <= 0 {
		return
	}

	j.flushCopy()
	d.cmd = appendLiteralHeader(d.cmd[:0], int64(n))
	j.emit(d.cmd)
	j.emit(d.buf[d.litStart:upto])
	d.litStart = upto

	j.stats.LitCmds++
	j.stats.LitBytes += int64(n)
	j.stats.LitCmdBytes += int64(len(d.cmd))
}

func (j *Job) addCopy(pos int64, length int64) {
	d := j.delta
	if d.copyLen > 0 && d.copyPos+d.copyLen == pos {
		d.copyLen += length
		return
	}

	j.flushCopy()
	d.copyPos = pos
	d.copyLen = length
}

func (j *Job) flushCopy() {
	d := j.delta
	if d.copyLen == 0 {
		return
	}

	d.cmd = appendCopy(d.cmd[:0], d.copyPos, d.copyLen)
	j.emit(d.cmd)

	j.stats.CopyCmds++
	j.stats.CopyBytes += d.copyLen
	j.stats.CopyCmdBytes += int64(len(d.cmd))
	d.copyLen = 0
}
