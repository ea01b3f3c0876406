package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"winerp/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("route", req.Route),
				zap.String("source", req.Source),
				zap.String("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if reply != nil && reply.Error != nil {
				logger.Warn("request failed", append(fields,
					zap.String("code", string(reply.Error.Code)),
					zap.String("error", reply.Error.Message))...)
				return reply
			}
			logger.Debug("request handled", fields...)
			return reply
		}
	}
}
