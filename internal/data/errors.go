package data

import (
	"errors"
	"strconv"
)

// ErrorKind classifies failures surfaced by this package.
type ErrorKind uint8

const (
	// KindInvalidInput means the IP address string could not be parsed.
	KindInvalidInput ErrorKind = iota + 1
	// KindIO means the database could not be opened or failed validation.
	KindIO
	// KindLookup means the decoder failed while reading a record.
	KindLookup
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput = errors.New("invalid IP address")
	ErrIO           = errors.New("failed to open database")
	ErrLookup       = errors.New("lookup error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindIO:
		return ErrIO
	case KindLookup:
		return ErrLookup
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindIO:
		return "io"
	case KindLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// Error carries the kind of a failure together with the operation, the
// offending input (an IP address or a file path) and the underlying cause.
type Error struct {
	Kind  ErrorKind
	Op    string
	Input string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Input != "" {
		msg += " " + strconv.Quote(e.Input)
	}
	if s := e.Kind.sentinel(); s != nil {
		msg += ": " + s.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLookup) and friends match by kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func invalidInputError(ip string, err error) error {
	return &Error{Kind: KindInvalidInput, Op: "lookup", Input: ip, Err: err}
}

func openError(path string, err error) error {
	return &Error{Kind: KindIO, Op: "open", Input: path, Err: err}
}

func lookupError(op, ip string, err error) error {
	return &Error{Kind: KindLookup, Op: op, Input: ip, Err: err}
}
