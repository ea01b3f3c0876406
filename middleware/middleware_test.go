package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"winerp/message"
)

func echoHandler(ctx context.Context, req *message.Message) *message.Message {
	return req.Reply(message.Payload{"ok": true})
}

func slowHandler(ctx context.Context, req *message.Message) *message.Message {
	time.Sleep(200 * time.Millisecond)
	return req.Reply(nil)
}

func panicHandler(ctx context.Context, req *message.Message) *message.Message {
	panic("boom")
}

func newReq() *message.Message {
	return message.NewRequest("B", "A", "ping", nil)
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(echoHandler)

	resp := handler(context.Background(), newReq())
	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.Payload["ok"] != true {
		t.Fatalf("expect payload ok, got %+v", resp.Payload)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newReq())
	if resp.Error != nil {
		t.Fatalf("expect no error, got %+v", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	req := newReq()
	resp := handler(context.Background(), req)
	if !errors.Is(resp.Err(), message.ErrHandlerTimeout) {
		t.Fatalf("expect timeout error, got %+v", resp.Error)
	}
	if resp.ID != req.ID {
		t.Fatalf("timeout reply must keep the request id")
	}
}

func TestTimeoutHandlerPanic(t *testing.T) {
	handler := TimeOutMiddleware(time.Second)(panicHandler)

	req := newReq()
	resp := handler(context.Background(), req)
	if !errors.Is(resp.Err(), message.ErrHandlerFailed) {
		t.Fatalf("expect handler_failed, got %+v", resp.Error)
	}
	if resp.ID != req.ID {
		t.Fatalf("panic reply must keep the request id")
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newReq())
		if resp.Error != nil {
			t.Fatalf("request %d should pass, got error: %+v", i, resp.Error)
		}
	}

	resp := handler(context.Background(), newReq())
	if !errors.Is(resp.Err(), message.ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %+v", resp.Error)
	}
}

func TestRecover(t *testing.T) {
	handler := RecoverMiddleware(zap.NewNop())(panicHandler)

	resp := handler(context.Background(), newReq())
	if !errors.Is(resp.Err(), message.ErrHandlerFailed) {
		t.Fatalf("expect handler_failed, got %+v", resp)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Message) *message.Message {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(mark("outer"), LoggingMiddleware(zap.NewNop()), TimeOutMiddleware(500*time.Millisecond), mark("inner"))
	resp := chained(echoHandler)(context.Background(), newReq())

	if resp == nil || resp.Error != nil {
		t.Fatalf("expect a clean response, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected order: %v", order)
	}
}
