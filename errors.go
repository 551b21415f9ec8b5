package dbi

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("Not Found")
	ErrClosed          = errors.New("Closed.")
	ErrBadInput        = errors.New("Bad input. Should be a string or a buffer.")
	ErrNoTransaction   = errors.New("no active transaction")
	ErrWriteToReadOnly = errors.New("attempted write to read-only transaction")
	ErrEnginePanic     = errors.New("storage engine panicked")
)

// Error is the single error representation returned by Table operations.
// Err is either one of the sentinels above or the engine's own error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dbi %v: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClosed reports whether err is, or wraps, ErrClosed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Op == op {
		return err
	}
	return &Error{Op: op, Err: err}
}

// guard runs fn and normalizes whatever it produces, including a panic out
// of the engine binding, into an *Error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Op: op, Err: fmt.Errorf("%w: %v", ErrEnginePanic, r)}
		}
	}()
	return wrapErr(op, fn())
}
