package store

import (
	"fmt"
	"strings"
)

// Code identifies the error category.
type Code string

const (
	// CodeInvalidKey indicates an empty key on Get, Set or Delete.
	CodeInvalidKey Code = "INVALID_KEY"

	// CodeLoadFailure indicates the persistence file could not be read or parsed.
	CodeLoadFailure Code = "LOAD_FAILURE"

	// CodeSaveFailure indicates the persistence file could not be written.
	CodeSaveFailure Code = "SAVE_FAILURE"

	// CodeMalformedRecord indicates a record missing the field its shape requires.
	CodeMalformedRecord Code = "MALFORMED_RECORD"
)

// Sentinels for errors.Is. Every *Error matches the sentinel with its Code.
var (
	ErrInvalidKey      = &Error{Code: CodeInvalidKey}
	ErrLoadFailure     = &Error{Code: CodeLoadFailure}
	ErrSaveFailure     = &Error{Code: CodeSaveFailure}
	ErrMalformedRecord = &Error{Code: CodeMalformedRecord}
)

// Error is returned by every store operation and delivered by the load and
// close outcomes.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op is the operation that failed: "get", "set", "delete", "load", "save".
	Op string

	// Key is the record key, when the operation had one.
	Key string

	// Path is the persistence file, for load and save failures.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch e.Code {
	case CodeInvalidKey:
		fmt.Fprintf(&b, "invalid key: %q", e.Key)
	case CodeLoadFailure:
		b.WriteString("load failure")
	case CodeSaveFailure:
		b.WriteString("save failure")
	case CodeMalformedRecord:
		b.WriteString("malformed record")
		if e.Key != "" {
			fmt.Fprintf(&b, " at key %q", e.Key)
		}
	default:
		b.WriteString(string(e.Code))
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func invalidKey(op, key string) *Error {
	return &Error{Code: CodeInvalidKey, Op: op, Key: key}
}
