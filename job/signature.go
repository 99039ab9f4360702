package job

import (
	"github.com/itchio/rstream/rollsum"
	"github.com/itchio/rstream/signature"
	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
)

// Signature stream: a header (magic, block length, strong length),
// then for every block of the base its weak sum (4 bytes) and its
// strong sum (strong length bytes). The last block may be short.

func sigHeader(j *Job) Result {
	header := make([]byte, signature.HeaderSize)
	j.sig.PutHeader(header)
	j.emit(header)
	j.stats.SigCmds++
	j.stats.SigBytes += signature.HeaderSize

	j.statefn = sigBlock
	return Running
}

func sigBlock(j *Job) Result {
	block := j.gather(j.sig.BlockLen, true)
	if block == nil {
		if j.eof && j.pending() == 0 {
			return Done
		}
		return Blocked
	}

	record := make([]byte, 0, j.sig.RecordSize())
	record = record[:signature.WeakSize]
	wire.PutInt(record, signature.WeakSize, int64(rollsum.WeakSum(block)))
	record = append(record, j.sig.StrongSum(block)...)
	j.emit(record)

	j.stats.SigBlocks++
	j.stats.SigCmds++
	j.stats.SigBytes += int64(len(record))
	return Running
}

func loadHeader(j *Job) Result {
	header := j.gather(signature.HeaderSize, false)
	if header == nil {
		return j.starved("signature header")
	}

	err := j.sig.ReadHeader(header)
	if err != nil {
		if errors.Cause(err) == wire.ErrInvalidMagic {
			return j.fail(BadMagic, err)
		}
		return j.fail(Corrupt, err)
	}

	j.stats.BlockLen = j.sig.BlockLen
	j.statefn = loadBlock
	return Running
}

func loadBlock(j *Job) Result {
	record := j.gather(j.sig.RecordSize(), false)
	if record == nil {
		if j.eof && j.pending() == 0 {
			return Done
		}
		return j.starved("signature block")
	}

	weak := uint32(wire.ReadInt(record, signature.WeakSize))
	err := j.sig.Add(weak, record[signature.WeakSize:])
	if err != nil {
		if errors.Cause(err) == signature.ErrReleased {
			return j.fail(ParamError, err)
		}
		return j.fail(InternalError, err)
	}

	j.stats.SigBlocks++
	return Running
}
