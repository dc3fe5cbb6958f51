// Package errs defines the structured failures shared by frequency spaces, items,
// datasets and store backends.
//
// Backend adapters translate their native failures (sqlite, filesystem) into these
// codes before returning; the core never reinterprets them and never retries.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorises a failure.
type Code string

const (
	// CodeInvalidFrequency indicates a frequency outside the space's bit range,
	// or one that cannot be used where it was requested.
	CodeInvalidFrequency Code = "INVALID_FREQUENCY"

	// CodeDatatypeMismatch indicates an item cannot be presented as the requested datatype.
	CodeDatatypeMismatch Code = "DATATYPE_MISMATCH"

	// CodeEntryNotFound indicates no entry exists at the requested path.
	CodeEntryNotFound Code = "ENTRY_NOT_FOUND"

	// CodeEntryExists indicates an entry already exists at the requested path.
	CodeEntryExists Code = "ENTRY_EXISTS"

	// CodeStoreConnection indicates the store session could not be opened.
	CodeStoreConnection Code = "STORE_CONNECTION"

	// CodeNotConnected indicates a store operation outside an active connection scope.
	CodeNotConnected Code = "NOT_CONNECTED"

	// CodeWriteFailure indicates content could not be written to the store.
	CodeWriteFailure Code = "WRITE_FAILURE"
)

// Error is a structured failure carrying the offending path, row and frequency.
type Error struct {
	Code Code

	// Message is a human-readable description.
	Message string

	// Path is the entry path or column name involved, if any.
	Path string

	// Row is the row identifier involved, if any.
	Row string

	// Frequency is the row frequency involved, if any.
	Frequency string

	// Err is the underlying backend failure, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Row != "" {
		ctx = append(ctx, "row="+e.Row)
	}
	if e.Frequency != "" {
		ctx = append(ctx, "frequency="+e.Frequency)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying failure.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying failure.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// At sets the path, row and frequency context and returns e.
func (e *Error) At(path, row, frequency string) *Error {
	e.Path = path
	e.Row = row
	e.Frequency = frequency
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err's chain contains an *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsEntryNotFound reports whether err is an EntryNotFound failure.
func IsEntryNotFound(err error) bool { return Is(err, CodeEntryNotFound) }

// IsNotConnected reports whether err is a NotConnected failure.
func IsNotConnected(err error) bool { return Is(err, CodeNotConnected) }

// IsDatatypeMismatch reports whether err is a DatatypeMismatch failure.
func IsDatatypeMismatch(err error) bool { return Is(err, CodeDatatypeMismatch) }
