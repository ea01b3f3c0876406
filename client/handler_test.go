package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winerp/message"
)

func ping(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return message.Payload{"response": "pong"}, nil
}

type namedEcho struct{}

func (namedEcho) Name() string { return "echo" }

func (namedEcho) Serve(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return payload, nil
}

func typed[T any](ctx context.Context, payload message.Payload) (message.Payload, error) {
	return nil, nil
}

type calculator struct{}

func (calculator) Add(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return nil, nil
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "ping", handlerName(HandlerFunc(ping)))
	assert.Equal(t, "echo", handlerName(namedEcho{}))
	assert.Equal(t, "Add", handlerName(HandlerFunc(calculator{}.Add)))

	closure := HandlerFunc(func(ctx context.Context, payload message.Payload) (message.Payload, error) {
		return nil, nil
	})
	assert.Equal(t, "", handlerName(closure))

	var nested HandlerFunc
	func() {
		nested = func(ctx context.Context, payload message.Payload) (message.Payload, error) {
			return nil, nil
		}
	}()
	assert.Equal(t, "", handlerName(nested))
	assert.Equal(t, "", handlerName(HandlerFunc(typed[int])))
}

func TestRegisterRoute(t *testing.T) {
	c, err := NewClient(Options{Name: "A", Addr: "127.0.0.1:1"})
	require.NoError(t, err)

	require.NoError(t, c.RegisterRoute("", HandlerFunc(ping)))
	require.ErrorIs(t, c.RegisterRoute("ping", namedEcho{}), message.ErrDuplicateName)
	require.NoError(t, c.RegisterRoute("", namedEcho{}))

	assert.ErrorIs(t, c.RegisterRoute("nil", nil), ErrInvalidRouteType)
	assert.ErrorIs(t, c.RegisterRoute("nilfunc", HandlerFunc(nil)), ErrInvalidRouteType)
	assert.ErrorIs(t, c.HandleFunc("nilfunc", nil), ErrInvalidRouteType)
	assert.ErrorIs(t, c.HandleFunc("", func(ctx context.Context, payload message.Payload) (message.Payload, error) {
		return nil, nil
	}), ErrInvalidArgument)

	assert.ErrorIs(t, c.RegisterRoute("", HandlerFunc(typed[string])), ErrInvalidArgument)

	_, ok := c.routes.lookup("echo")
	assert.True(t, ok)
}

func TestPendingTable(t *testing.T) {
	var p pendingTable
	deadline := time.Now().Add(time.Minute)

	wait, ok := p.add("1", deadline)
	require.True(t, ok)
	_, ok = p.add("1", deadline)
	require.False(t, ok, "ids are unique")

	req := &message.Message{ID: "1", Kind: message.KindRequest}
	require.True(t, p.resolve(req.Reply(message.Payload{"ok": true})))
	res := <-wait
	require.NoError(t, res.err)
	assert.Equal(t, true, res.payload["ok"])

	// Only the first settlement wins.
	assert.False(t, p.resolve(req.Reply(nil)))
	assert.False(t, p.remove("1"))

	wait2, _ := p.add("2", deadline)
	p.add("3", deadline)
	assert.Equal(t, 2, p.len())
	assert.Equal(t, 2, p.failAll(ErrClosed))
	assert.ErrorIs(t, (<-wait2).err, ErrClosed)
	assert.Equal(t, 0, p.len())
}

func TestPendingTableErrorReply(t *testing.T) {
	var p pendingTable
	wait, _ := p.add("1", time.Now())
	req := &message.Message{ID: "1", Kind: message.KindRequest}
	require.True(t, p.resolve(req.Fail(message.CodeUnreachable, "gone")))
	assert.ErrorIs(t, (<-wait).err, message.ErrUnreachable)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Options{Addr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewClient(Options{Name: "A"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
