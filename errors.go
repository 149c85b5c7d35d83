package webcodecs

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrCodecNotSupported = errors.New("codec not supported")
	ErrProviderNotFound  = errors.New("provider not available")
	ErrNoMoreUnits       = errors.New("no more units available")
)

// ErrorKind classifies codec failures. Every ErrorKind is itself an error,
// so callers can write errors.Is(err, webcodecs.InvalidStateError).
type ErrorKind uint8

const (
	TypeError         ErrorKind = iota + 1 // Malformed configuration or argument
	InvalidStateError                      // Operation not valid in the current state
	NotSupportedError                      // Codec unavailable in any backend
	DecodeError                            // Backend rejected encoded data
	EncodingError                          // Backend rejected raw data
	InternalError                          // Unexpected backend failure or job panic
	AbortError                             // Pending work discarded by reset or close
)

func (k ErrorKind) String() string {
	switch k {
	case TypeError:
		return "TypeError"
	case InvalidStateError:
		return "InvalidStateError"
	case NotSupportedError:
		return "NotSupportedError"
	case DecodeError:
		return "DecodeError"
	case EncodingError:
		return "EncodingError"
	case InternalError:
		return "InternalError"
	case AbortError:
		return "AbortError"
	default:
		return "UnknownError"
	}
}

func (k ErrorKind) Error() string {
	return k.String()
}

// CodecError is the error type returned by facade methods and passed to
// error callbacks.
type CodecError struct {
	Kind ErrorKind
	Op   string // Operation that failed, e.g. "decode"
	Err  error  // Underlying cause, may be nil
}

func newError(kind ErrorKind, op string, err error) *CodecError {
	return &CodecError{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *CodecError {
	return &CodecError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *CodecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error's kind.
func (e *CodecError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// KindOf returns the ErrorKind carried by err, or 0 if err carries none.
func KindOf(err error) ErrorKind {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return 0
}
