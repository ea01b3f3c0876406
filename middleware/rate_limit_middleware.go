package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"winerp/message"
)

// RateLimitMiddleware rejects inbound requests beyond r per second (token bucket).
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			if !limiter.Allow() {
				return req.Fail(message.CodeRateLimited, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
