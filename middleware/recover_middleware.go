package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"winerp/message"
)

// RecoverMiddleware turns a handler panic into a handler_failed error reply.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) (reply *message.Message) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("handler panicked",
						zap.String("route", req.Route),
						zap.String("id", req.ID),
						zap.Any("panic", p))
					reply = req.Fail(message.CodeHandlerFailed, fmt.Sprintf("panic: %v", p))
				}
			}()
			return next(ctx, req)
		}
	}
}
