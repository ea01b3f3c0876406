package client

import "errors"

var (
	// ErrNotReady is returned when a request is issued on a connection that is not in the ready state.
	ErrNotReady = errors.New("winerp: client not ready")
	// ErrInvalidRouteType is returned when registering a route without a usable handler.
	ErrInvalidRouteType = errors.New("winerp: invalid route handler")
	// ErrRequestTimeout is returned when no reply arrives within the request timeout.
	ErrRequestTimeout = errors.New("winerp: request timed out")
	// ErrInvalidArgument is returned for empty route, destination or identity names.
	ErrInvalidArgument = errors.New("winerp: invalid argument")
	// ErrOrphanResponse is logged for replies whose id has no pending request.
	ErrOrphanResponse = errors.New("winerp: response to unknown request")
	ErrClosed         = errors.New("winerp: client closed")
)
