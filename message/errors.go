package message

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class on the wire.
type ErrorCode string

const (
	CodeUnauthorized  ErrorCode = "unauthorized"
	CodeDuplicateName ErrorCode = "duplicate_name"
	CodeRouteNotFound ErrorCode = "route_not_found"
	CodeUnreachable   ErrorCode = "unreachable"
	CodeHandlerFailed ErrorCode = "handler_failed"
	CodeBadRequest    ErrorCode = "bad_request"
	CodeRateLimited   ErrorCode = "rate_limited"
	CodeTimeout       ErrorCode = "timeout"
)

// ErrorDetail is present only on error messages.
type ErrorDetail struct {
	Code    ErrorCode `json:"code" msgpack:"code"`
	Message string    `json:"message,omitempty" msgpack:"message,omitempty"`
}

var (
	ErrUnauthorized   = errors.New("winerp: unauthorized")
	ErrDuplicateName  = errors.New("winerp: name already registered")
	ErrRouteNotFound  = errors.New("winerp: route not found")
	ErrUnreachable    = errors.New("winerp: destination unreachable")
	ErrHandlerFailed  = errors.New("winerp: handler failed")
	ErrBadRequest     = errors.New("winerp: bad request")
	ErrRateLimited    = errors.New("winerp: rate limit exceeded")
	ErrHandlerTimeout = errors.New("winerp: handler timed out")
)

var codeErrors = map[ErrorCode]error{
	CodeUnauthorized:  ErrUnauthorized,
	CodeDuplicateName: ErrDuplicateName,
	CodeRouteNotFound: ErrRouteNotFound,
	CodeUnreachable:   ErrUnreachable,
	CodeHandlerFailed: ErrHandlerFailed,
	CodeBadRequest:    ErrBadRequest,
	CodeRateLimited:   ErrRateLimited,
	CodeTimeout:       ErrHandlerTimeout,
}

// RemoteError is an error reported by the broker or by the destination peer.
// errors.Is matches the sentinel for its code.
type RemoteError struct {
	Code    ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: %s", e.Code)
	}
	return fmt.Sprintf("remote error: %s: %s", e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return codeErrors[e.Code]
}

// CodeOf maps a local error to the wire code that describes it best.
func CodeOf(err error) ErrorCode {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeHandlerFailed
}
