package job

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is the status of a step. Values match librsync's rs_result,
// so they can cross a process or language boundary as plain integers.
type Result int

const (
	// Done: the job completed, no further steps are allowed
	Done Result = 0
	// Blocked: the job needs more input or more output room
	Blocked Result = 1
	// Running is never returned by Step, only used internally
	Running Result = 2

	IOError       Result = 100
	SyntaxError   Result = 101
	MemError      Result = 102
	InputEnded    Result = 103
	BadMagic      Result = 104
	Unimplemented Result = 105
	Corrupt       Result = 106
	InternalError Result = 107
	ParamError    Result = 108
)

var resultNames = map[Result]string{
	Done:          "done",
	Blocked:       "blocked",
	Running:       "running",
	IOError:       "IO error",
	SyntaxError:   "bad command line syntax",
	MemError:      "out of memory",
	InputEnded:    "unexpected end of input",
	BadMagic:      "bad magic number",
	Unimplemented: "unimplemented case",
	Corrupt:       "stream corrupt",
	InternalError: "library internal error",
	ParamError:    "bad parameters",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown result %d", int(r))
}

// Failed returns true for results that end the job in error.
func (r Result) Failed() bool {
	return r != Done && r != Blocked && r != Running
}

// Error is what a failed job reports: a Result code and the reason.
type Error struct {
	Result Result
	Err    error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Result.String()
	}
	return fmt.Sprintf("%s: %s", e.Result, e.Err.Error())
}

func (e *Error) Cause() error {
	return e.Err
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ResultOf returns the Result carried by err, Done for a nil error,
// and InternalError for errors that don't come from a job.
func ResultOf(err error) Result {
	if err == nil {
		return Done
	}
	var je *Error
	if errors.As(err, &je) {
		return je.Result
	}
	return InternalError
}

func newError(r Result, err error) *Error {
	return &Error{Result: r, Err: err}
}

var (
	ErrReleased      = errors.New("job was released")
	ErrTerminal      = errors.New("job already finished")
	ErrNilCursor     = errors.New("nil input or output cursor")
	ErrMissingSource = errors.New("patch job has no base source")
)

func errEnded(what string, have int) error {
	return errors.Errorf("input ended in the middle of %s (%d bytes buffered)", what, have)
}
