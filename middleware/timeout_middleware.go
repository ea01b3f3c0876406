package middleware

import (
	"context"
	"fmt"
	"time"

	"winerp/message"
)

// TimeOutMiddleware answers with a timeout error when the handler takes longer
// than timeout. The handler keeps running in the background; its ctx is cancelled.
// A panic in the handler goroutine becomes a handler_failed reply.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Message, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						done <- req.Fail(message.CodeHandlerFailed, fmt.Sprintf("panic: %v", p))
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return req.Fail(message.CodeTimeout, "handler timed out")
			}
		}
	}
}
