package job_test

import (
	"testing"

	"github.com/itchio/rstream/cursor"
	"github.com/itchio/rstream/job"
	"github.com/itchio/rstream/source"
	"github.com/itchio/rstream/wire"
	"github.com/itchio/rstream/wtest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// deltaOf builds a delta stream by hand.
func deltaOf(cmds ...[]byte) []byte {
	res := []byte{0x72, 0x73, 0x02, 0x36}
	for _, cmd := range cmds {
		res = append(res, cmd...)
	}
	return res
}

func Test_PatchCommands(t *testing.T) {
	base := []byte("0123456789abcdefghij")

	d := deltaOf(
		[]byte{0x03, 'x', 'y', 'z'},
		[]byte{0x45, 10, 5},
		[]byte{0x41, 2, '-', '-'},
		[]byte{0x49, 0x00, 0x00, 4},
		[]byte{0x00},
	)
	assert.Equal(t, "xyzabcde--0123", string(patch(t, base, d, 1, 1)))
	assert.Equal(t, "xyzabcde--0123", string(patch(t, base, d, 1024, 1024)))
}

func Test_LongCopySpansSteps(t *testing.T) {
	base := wtest.RandBytes(t, 0xabc, 10000)
	d := deltaOf([]byte{0x4a, 0x00, 0x00, 0x27, 0x10}, []byte{0x00})

	fetches := 0
	src := source.Func(func(pos int64, length int) (cursor.Cursor, error) {
		fetches++
		assert.True(t, length <= 3)
		return source.FromBytes(base).Fetch(pos, length)
	})

	j, err := job.BeginPatch(src)
	wtest.Must(t, err)
	defer j.Release()

	res, r := runJob(t, j, d, 64, 3)
	assert.Equal(t, job.Done, r)
	assert.Equal(t, base, res)
	assert.True(t, fetches >= 10000/3)
	assert.EqualValues(t, fetches, j.Stats().Fetches)
}

func runPatch(t *testing.T, src source.Source, d []byte) (*job.Job, job.Result) {
	j, err := job.BeginPatch(src)
	wtest.Must(t, err)
	_, r := runJob(t, j, d, 64, 64)
	return j, r
}

func Test_PatchFailures(t *testing.T) {
	base := []byte("0123456789")
	src := source.FromBytes(base)

	for _, tc := range []struct {
		name   string
		delta  []byte
		result job.Result
	}{
		{"bad magic", []byte{0x72, 0x73, 0x01, 0x36, 0x00}, job.BadMagic},
		{"short magic", []byte{0x72, 0x73}, job.InputEnded},
		{"no end", deltaOf([]byte{0x01, 'a'}), job.InputEnded},
		{"truncated literal", deltaOf([]byte{0x05, 'a', 'b'}), job.InputEnded},
		{"truncated params", deltaOf([]byte{0x4a, 0x00}), job.InputEnded},
		{"bogus command", deltaOf([]byte{0x55}, []byte{0x00}), job.Corrupt},
		{"negative copy length", deltaOf([]byte{0x48, 0x00, 0x80, 0, 0, 0, 0, 0, 0, 0}), job.Corrupt},
		{"copy past base end", deltaOf([]byte{0x45, 8, 5}, []byte{0x00}), job.InputEnded},
	} {
		t.Run(tc.name, func(t *testing.T) {
			j, r := runPatch(t, src, tc.delta)
			assert.Equal(t, tc.result, r)
			assert.Equal(t, tc.result, job.ResultOf(j.Err()))
			assert.Equal(t, job.StateFailed, j.State())
			assert.NoError(t, j.Release())
		})
	}
}

func Test_SourceFailures(t *testing.T) {
	d := deltaOf([]byte{0x45, 0, 4}, []byte{0x00})

	for _, tc := range []struct {
		name   string
		src    source.Source
		result job.Result
	}{
		{"error", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{}, errors.New("disk on fire")
		}), job.IOError},
		{"negative position", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{Buf: make([]byte, 8), Pos: -1, Limit: 2}, nil
		}), job.InternalError},
		{"negative limit", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{Buf: make([]byte, 8), Pos: 0, Limit: -3}, nil
		}), job.InternalError},
		{"limit past buffer", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{Buf: make([]byte, 8), Pos: 0, Limit: 9}, nil
		}), job.InternalError},
		{"too long", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{Buf: make([]byte, 8), Pos: 0, Limit: 8}, nil
		}), job.InternalError},
		{"empty", source.Func(func(pos int64, length int) (cursor.Cursor, error) {
			return cursor.Cursor{}, nil
		}), job.InputEnded},
		{"missing", nil, job.ParamError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			j, r := runPatch(t, tc.src, d)
			assert.Equal(t, tc.result, r)
			assert.Equal(t, job.StateFailed, j.State())
			assert.Error(t, j.Err())
			assert.NoError(t, j.Release())
		})
	}

	j, r := runPatch(t, nil, d)
	assert.Equal(t, job.ErrMissingSource, errors.Cause(j.Err()))
	assert.Equal(t, job.ParamError, r)
	assert.NoError(t, j.Release())
}

func Test_SourceBinding(t *testing.T) {
	base := []byte("hello world")
	d := deltaOf([]byte{0x01, '>'}, []byte{0x45, 0, 5}, []byte{0x45, 6, 5}, []byte{0x00})

	// bound after creation, before the first copy
	j, err := job.BeginPatch(nil)
	wtest.Must(t, err)
	in := cursor.New(d[:6])
	out := cursor.New(make([]byte, 64))
	assert.Equal(t, job.Blocked, j.Step(in, out, false))
	wtest.Must(t, j.SetSource(source.FromBytes(base)))

	in = cursor.New(d[6:])
	assert.Equal(t, job.Done, j.Step(in, out, true))
	assert.Equal(t, ">helloworld", string(out.Written()))
	assert.NoError(t, j.Release())
	assert.Equal(t, job.ErrReleased, j.SetSource(nil))

	// rebound between steps
	other := []byte("HELLO WORLD")
	j, err = job.BeginPatch(source.FromBytes(base))
	wtest.Must(t, err)
	out = cursor.New(make([]byte, 64))
	assert.Equal(t, job.Blocked, j.Step(cursor.New(d[:9]), out, false))
	wtest.Must(t, j.SetSource(source.FromBytes(other)))
	assert.Equal(t, job.Done, j.Step(cursor.New(d[9:]), out, true))
	assert.Equal(t, ">helloWORLD", string(out.Written()))
	assert.NoError(t, j.Release())

	// rebound as part of a step
	j, err = job.BeginPatch(nil)
	wtest.Must(t, err)
	out = cursor.New(make([]byte, 64))
	assert.Equal(t, job.Blocked, j.StepWithSource(cursor.New(d[:9]), out, false, source.FromBytes(base)))
	assert.Equal(t, job.Done, j.StepWithSource(cursor.New(d[9:]), out, true, nil))
	assert.Equal(t, ">helloworld", string(out.Written()))
	assert.NoError(t, j.Release())
	assert.Equal(t, job.ParamError, j.StepWithSource(cursor.New(d), out, true, source.FromBytes(base)))

	sj, err := job.BeginSignature(16, 0, 0)
	wtest.Must(t, err)
	assert.Error(t, sj.SetSource(source.FromBytes(base)))
	assert.Equal(t, job.ParamError, sj.StepWithSource(cursor.New(nil), cursor.New(nil), true, source.FromBytes(base)))
	assert.Equal(t, job.StateFailed, sj.State())
	assert.Equal(t, job.ParamError, job.ResultOf(sj.Err()))
	assert.NoError(t, sj.Release())
}

func Test_Release(t *testing.T) {
	// right after Begin
	j, err := job.BeginSignature(16, 0, wire.MD4SigMagic)
	wtest.Must(t, err)
	assert.NoError(t, j.Release())
	assert.True(t, j.Released())
	assert.Equal(t, job.ErrReleased, j.Release())

	in := cursor.New([]byte("abc"))
	out := cursor.New(make([]byte, 64))
	assert.Equal(t, job.ParamError, j.Step(in, out, true))
	assert.Equal(t, 0, in.Pos)
	assert.Equal(t, 0, out.Pos)

	// after failing
	lj, sig := job.BeginLoadSignature()
	assert.Equal(t, job.BadMagic, lj.Step(cursor.New(make([]byte, 12)), out, true))
	assert.NoError(t, lj.Release())
	assert.Equal(t, job.ErrReleased, lj.Release())
	assert.NoError(t, sig.Release())
}

func Test_TerminalStep(t *testing.T) {
	j, err := job.BeginSignature(16, 0, wire.MD4SigMagic)
	wtest.Must(t, err)
	defer j.Release()

	out := cursor.New(make([]byte, 1024))
	assert.Equal(t, job.Done, j.Step(cursor.New([]byte("abc")), out, true))
	assert.NoError(t, j.Err())

	assert.Equal(t, job.ParamError, j.Step(cursor.New(nil), out, true))
	assert.Equal(t, job.StateFailed, j.State())
	assert.Equal(t, job.ErrTerminal, errors.Cause(j.Err()))

	// the first failure sticks
	assert.Equal(t, job.ParamError, j.Step(cursor.New(nil), out, true))
	assert.Equal(t, job.ErrTerminal, errors.Cause(j.Err()))
}

func Test_BadCursors(t *testing.T) {
	mk := func() *job.Job {
		j, err := job.BeginSignature(16, 0, wire.MD4SigMagic)
		wtest.Must(t, err)
		return j
	}

	j := mk()
	assert.Equal(t, job.ParamError, j.Step(nil, cursor.New(make([]byte, 4)), false))
	assert.Equal(t, job.ErrNilCursor, errors.Cause(j.Err()))
	assert.NoError(t, j.Release())

	j = mk()
	assert.Equal(t, job.ParamError, j.Step(&cursor.Cursor{Buf: make([]byte, 4), Pos: 3, Limit: 2}, cursor.New(make([]byte, 4)), false))
	assert.Equal(t, cursor.ErrBounds, errors.Cause(j.Err()))
	assert.NoError(t, j.Release())

	j = mk()
	assert.Equal(t, job.ParamError, j.Step(cursor.New(nil), &cursor.Cursor{Pos: -1}, false))
	assert.NoError(t, j.Release())
}

func Test_BlockedRetry(t *testing.T) {
	base := wtest.RandBytes(t, 0xb10c, 300)
	j, err := job.BeginSignature(100, 0, wire.MD4SigMagic)
	wtest.Must(t, err)
	defer j.Release()

	// no output room: blocked, nothing consumed
	in := cursor.New(base)
	out := cursor.New(nil)
	assert.Equal(t, job.Blocked, j.Step(in, out, false))
	assert.Equal(t, job.StateBlocked, j.State())

	// more room: progress
	out = cursor.New(make([]byte, 5))
	assert.Equal(t, job.Blocked, j.Step(in, out, false))
	assert.Equal(t, 5, out.Pos)

	var res []byte
	res = append(res, out.Written()...)
	for i := 0; i < 100; i++ {
		out.Reset()
		r := j.Step(in, out, true)
		res = append(res, out.Written()...)
		if r == job.Done {
			break
		}
		assert.Equal(t, job.Blocked, r)
		assert.True(t, out.Pos > 0)
	}
	assert.Equal(t, job.StateDone, j.State())
	assert.Equal(t, sign(t, base, 100, wire.MD4SigMagic), res)
}

func Test_ResultNames(t *testing.T) {
	assert.Equal(t, "done", job.Done.String())
	assert.Equal(t, "bad magic number", job.BadMagic.String())
	assert.Contains(t, job.Result(42).String(), "42")
	assert.False(t, job.Blocked.Failed())
	assert.True(t, job.Corrupt.Failed())
	assert.Equal(t, job.InternalError, job.ResultOf(errors.New("random")))
	assert.Equal(t, job.Done, job.ResultOf(nil))

	err := errors.Wrap(&job.Error{Result: job.IOError, Err: errors.New("boom")}, "wrapped")
	assert.Equal(t, job.IOError, job.ResultOf(err))
	assert.Contains(t, err.Error(), "IO error: boom")
}
