package diag

import (
	"errors"
	"fmt"
)

// Error is a construction-time failure raised by a builder call.
type Error struct {
	Code    Code
	Message string
	// Where names the member under construction (demo/Point.getX).
	Where string
	// Cause is the earlier failure for AsmUnusable errors.
	Cause error
}

func (e *Error) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("%s: %s", e.Code.ID(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code.ID(), e.Where, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Category returns the taxonomy bucket of the error code.
func (e *Error) Category() Category { return e.Code.Category() }

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// At returns a copy of e located at where, unless it already has a location.
func (e *Error) At(where string) *Error {
	if e == nil || e.Where != "" {
		return e
	}
	cp := *e
	cp.Where = where
	return &cp
}

// CodeOf extracts the code of the outermost *Error in err's chain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return UnknownCode
}

// RootCode follows AsmUnusable wrapping down to the first failure.
func RootCode(err error) Code {
	var de *Error
	for errors.As(err, &de) {
		if de.Code != AsmUnusable || de.Cause == nil {
			return de.Code
		}
		err = de.Cause
	}
	return UnknownCode
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}
