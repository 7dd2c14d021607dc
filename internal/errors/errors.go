// Package errors provides the error helpers shared across arsenal. It wraps
// github.com/pkg/errors so call sites get stack traces on Wrap/Errorf, and
// adds a Fatal error kind for errors that should abort the process instead
// of bubbling up through the aggregation tree.
package errors

import goerrors "github.com/pkg/errors"

// New, Errorf, Wrap, Wrapf and Cause are re-exported from github.com/pkg/errors
// so the rest of the tree only ever imports this package.
var (
	New    = goerrors.New
	Errorf = goerrors.Errorf
	Wrap   = goerrors.Wrap
	Wrapf  = goerrors.Wrapf
	Cause  = goerrors.Cause
	Is     = goerrors.Is
	As     = goerrors.As
)

// fatalError marks an error that should terminate the process: invalid
// configuration, bad command-line arguments, or anything else discovered
// before the filesystem is mounted.
type fatalError struct {
	msg string
}

func (e *fatalError) Error() string { return e.msg }

// Fatal creates an error that IsFatal reports true for.
func Fatal(s string) error {
	return &fatalError{s}
}

// Fatalf creates a fatal error with a format string.
func Fatalf(s string, args ...interface{}) error {
	return &fatalError{Errorf(s, args...).Error()}
}

// IsFatal returns whether err (or something it wraps) was created by Fatal
// or Fatalf.
func IsFatal(err error) bool {
	var f *fatalError
	return As(err, &f)
}
