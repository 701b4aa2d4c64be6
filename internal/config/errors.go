package config

import (
	"errors"
	"fmt"
)

// Kind classifies a configuration failure.
type Kind int

const (
	NotFound Kind = iota + 1
	UnsupportedFormat
	InvalidValue
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case UnsupportedFormat:
		return "unsupported format"
	case InvalidValue:
		return "invalid value"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels matched by [Error.Is].
var (
	ErrNotFound          = errors.New("config file not found")
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	ErrInvalidValue      = errors.New("invalid config value")

	// ErrHelp and ErrVersion are returned by Resolve for --help and --version.
	ErrHelp    = errors.New("help requested")
	ErrVersion = errors.New("version requested")
)

// Error is returned by Resolve when the configuration cannot be built. The
// process must not start with it.
type Error struct {
	Kind  Kind
	Field string // settings field for InvalidValue, if known
	Path  string // config file, if the failure came from one
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrUnsupportedFormat:
		return e.Kind == UnsupportedFormat
	case ErrInvalidValue:
		return e.Kind == InvalidValue
	}
	return false
}

func invalid(field, path string, err error) *Error {
	return &Error{Kind: InvalidValue, Field: field, Path: path, Err: err}
}
