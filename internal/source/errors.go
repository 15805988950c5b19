package source

import (
	"errors"
	"fmt"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeRateLimited         = "E_RATE_LIMITED"
	CodeNotFound            = "E_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeDeltaExpired        = "E_DELTA_EXPIRED"
	CodeListFailed          = "E_LIST_FAILED"
)

// Error wraps source API failures with retryability hints. An adapter error
// aborts only the resource being synced, never the whole run.
type Error struct {
	Code      string
	Retryable bool
	Err       error
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

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

// WrapError builds a coded adapter error.
func WrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// IsNotFound reports whether err carries the adapter not-found code.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeNotFound
}

// IsDeltaExpired reports whether err indicates the stored delta token is no
// longer honored by the source and a full re-enumeration is required.
func IsDeltaExpired(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeDeltaExpired
}
