// Package errs carries error context through the bridge without losing the
// chain: errors.Is/As keep working on anything returned from here.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Wrap prefixes err with msg. Returns nil for a nil err so call sites can
// wrap unconditionally.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// StackError pairs an error with the stack captured where it first crossed
// an infrastructure boundary.
type StackError struct {
	cause error
	stack []byte
}

func (e *StackError) Error() string { return e.cause.Error() }
func (e *StackError) Unwrap() error { return e.cause }
func (e *StackError) Stack() []byte { return e.stack }

// WithStack records the current stack on err. A stack already present
// anywhere in the chain wins; the first capture is the interesting one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var existing *StackError
	if errors.As(err, &existing) {
		return err
	}
	return &StackError{cause: err, stack: debug.Stack()}
}

type logValuer struct{ err error }

// Loggable renders err as structured slog fields: the full message, the
// unwrap chain outer to inner, and the stack when one was captured.
// Usage: slog.Any("err", errs.Loggable(err)).
func Loggable(err error) slog.LogValuer { return logValuer{err: err} }

func (l logValuer) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	chain := make([]string, 0, 4)
	for e := l.err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", chain),
	}
	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}
	return slog.GroupValue(attrs...)
}
