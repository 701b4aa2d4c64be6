// Package errors provides error values that carry the call stack at their
// point of creation, optional logging fields, and HTTP status errors that the
// request pipeline translates into client responses.
package errors

import (
	stderr "errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

// Error is an error type with embedded stack trace and optional logging
// attributes.
type Error struct {
	stack      Stack
	msg        string
	underlying error
	fields     map[string]any
}

// New returns a new error value with embedded location and stack trace.
func New(text string) *Error {
	return &Error{
		stack: getStack(3),
		msg:   text,
	}
}

// Errorf returns a new formatted error value with embedded location and stack
// trace. Errors wrapped with %w remain reachable through [Unwrap].
func Errorf(msg string, v ...any) *Error {
	err := fmt.Errorf(msg, v...)
	return &Error{
		stack:      getStack(3),
		msg:        err.Error(),
		underlying: stderr.Unwrap(err),
	}
}

// Wrap attaches a stack to err, unless err already carries one, in which case
// it is returned untouched. A nil err gives nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var sErr *Error
	if stderr.As(err, &sErr) {
		return err
	}
	return &Error{
		stack:      getStack(3),
		msg:        err.Error(),
		underlying: err,
	}
}

// Recovered turns a value obtained from recover() into an [*Error] whose stack
// points at the panic site. skip is the number of frames between the caller
// and the deferred function that called recover.
func Recovered(v any, skip int) *Error {
	e := &Error{stack: getStack(3 + skip)}
	switch pv := v.(type) {
	case error:
		e.msg = "panic: " + pv.Error()
		e.underlying = pv
	default:
		e.msg = fmt.Sprintf("panic: %v", pv)
	}
	return e
}

// Error conforms to the stdlib error interface.
func (e *Error) Error() string {
	return e.msg
}

// Unwrap allows this error to be unwrapped such that errors embedded using
// [Errorf] with the `%w` print verb can be extracted.
func (e *Error) Unwrap() error {
	return e.underlying
}

// With adds a field and a value to this error that will be logged alongside
// it. This is a fluent interface and can be called in a chain to add multiple
// values.
func (e *Error) With(field string, value any) *Error {
	if e.fields == nil {
		e.fields = map[string]any{}
	}
	e.fields[field] = value
	return e
}

// Location returns the source location where the error was created.
func (e *Error) Location() *Location {
	if len(e.stack) == 0 {
		return &Location{}
	}
	return e.stack[0]
}

// Stack returns the callstack for the given error.
func (e *Error) Stack() Stack {
	return e.stack
}

// Fields returns a []any of any fields added to the error using [Error.With]
// with each key prefixed with `err_` to set them apart from other logged
// attributes. Keys are sorted so output is stable.
func (e *Error) Fields() []any {
	if len(e.fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fieldList := make([]any, 0, len(e.fields)*2)
	for _, k := range keys {
		fieldList = append(fieldList, "err_"+k, e.fields[k])
	}
	return fieldList
}

// Is, As and Unwrap from the standard library, so callers need only one errors
// import.
var (
	Is     = stderr.Is
	As     = stderr.As
	Unwrap = stderr.Unwrap
	Join   = stderr.Join
)

// Stack is the call stack from the location of the error up to main.main()
type Stack []*Location

// String renders the call stack in the format of:
//
//	<function>(<file>:<line>) ► [...]
func (s Stack) String() string {
	var sb strings.Builder
	for i := len(s) - 1; i >= 0; i-- {
		sb.WriteString(s[i].Function + `(` + s[i].File + `:` + strconv.Itoa(s[i].Line) + `)`)
		if i > 0 {
			sb.WriteString(` ► `)
		}
	}
	return sb.String()
}

// Location represents a single frame in the call stack.
type Location struct {
	File     string
	Function string
	Line     int
}

// String prints a Location in the form of `<file>:<line>`
func (l *Location) String() string {
	return l.File + `:` + strconv.Itoa(l.Line)
}

// Format implements [fmt.Formatter], allowing a Location to be printed using
// the following print verbs:
//
//   - %s, %v gives `<file>:<line>`
//   - %q     gives `"<file>:<line>"`
//   - %+v    gives `<file>:<line>(<function>)`
//   - %#v    gives `errors.Location{File: "<file>", Function: "<function>", Line: <line>}`
func (l *Location) Format(state fmt.State, verb rune) {
	switch verb {
	case 'q':
		state.Write([]byte(`"` + l.String() + `"`))
	case 's':
		state.Write([]byte(l.String()))
	case 'v':
		switch {
		case state.Flag('+'):
			state.Write([]byte(l.String() + `(` + l.Function + `)`))
		case state.Flag('#'):
			fmt.Fprintf(state, `errors.Location{File: %q, Function: %q, Line: %d}`, l.File, l.Function, l.Line)
		default:
			state.Write([]byte(l.String()))
		}
	default:
		state.Write([]byte(`%!` + string(verb) + `(errors.Location=` + l.String() + `)`))
	}
}

func getStack(skip int) Stack {
	stackptrs := make([]uintptr, 50)
	stackptrs = stackptrs[:runtime.Callers(skip, stackptrs)]
	stack := make(Stack, 0, len(stackptrs))
	frames := runtime.CallersFrames(stackptrs)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			frame.File = filepath.Base(frame.File)
			if strings.HasPrefix(frame.Function, `main.`) && len(frame.Function) > 5 && frame.Function[5] != '(' {
				frame.Function = strings.TrimPrefix(frame.Function, `main.`)
			}
			stack = append(stack, &Location{
				File:     frame.File,
				Function: frame.Function,
				Line:     frame.Line,
			})
		}

		if !more {
			break
		}
	}
	return slices.Clip(stack)
}
