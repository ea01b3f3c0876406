// Package middleware wraps the handler a Client runs for inbound requests.
//
// A HandlerFunc receives the request envelope and returns the envelope to send
// back: a response, or an error message correlated to the same id.
package middleware

import (
	"context"

	"winerp/message"
)

type HandlerFunc func(ctx context.Context, req *message.Message) *message.Message

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
