package graph

import (
	"errors"
	"fmt"
)

// Store error codes. Retry policy keys off these tags, never off error text.
const (
	CodeContention = "E_STORE_CONTENTION" // transient, retry with backoff
	CodeFatal      = "E_STORE_FATAL"      // non-retryable, aborts the resource
	CodeNotFound   = "E_STORE_NOT_FOUND"
)

// Error is the tagged store error variant.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) CodeValue() string { return e.Code }

// WrapError builds a tagged store error.
func WrapError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// IsContention reports whether err is a transient contention failure.
func IsContention(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeContention
}

// IsNotFound reports whether err is a store not-found.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeNotFound
}
