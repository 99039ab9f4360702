package wtest

import (
	"testing"

	"github.com/pkg/errors"
)

// Must shows a complete error stack and fails a test immediately
// if err is non-nil
func Must(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("%+v", errors.WithStack(err))
	}
}

// Mustf is Must with some context about what was being attempted.
func Mustf(t testing.TB, err error, format string, args ...interface{}) {
	if err != nil {
		t.Helper()
		t.Fatalf("%+v", errors.Wrapf(err, format, args...))
	}
}
