// Package transport carries message envelopes over one long-lived, full-duplex connection.
//
// Two implementations share the Conn interface:
//
//   - StreamConn: a raw TCP stream framed with the protocol package (header + body).
//   - WebSocketConn: one WebSocket message per envelope; text frames are JSON, binary frames are msgpack.
//
// Send is safe for concurrent use. Recv must be called from a single goroutine: a stream
// is parsed sequentially, so two readers would corrupt frame boundaries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"winerp/codec"
	"winerp/message"
)

// writeWait bounds a single frame write. A peer that stops reading fails the
// write instead of blocking the sender forever.
const writeWait = 10 * time.Second

// ErrMalformed marks a frame that arrived intact but whose body could not be decoded.
// The connection stays usable; the caller decides whether to drop the frame.
var ErrMalformed = errors.New("transport: malformed message")

// Conn is a message-oriented connection between a peer and the broker.
type Conn interface {
	Send(msg *message.Message) error
	Recv() (*message.Message, error)
	RemoteAddr() net.Addr
	Close() error
}

// Options tune a connection.
type Options struct {
	Codec codec.CodecType
	// Heartbeat is the keepalive interval. Zero disables heartbeats.
	Heartbeat time.Duration
	// IdleTimeout closes the read side when nothing arrives for this long.
	// Zero means three heartbeat intervals, or no limit when heartbeats are off.
	IdleTimeout time.Duration
}

func (o Options) idle() time.Duration {
	if o.IdleTimeout > 0 {
		return o.IdleTimeout
	}
	if o.Heartbeat > 0 {
		return 3 * o.Heartbeat
	}
	return 0
}

// Dial connects to a broker. Addresses with a ws:// or wss:// scheme use WebSocket,
// anything else (optionally prefixed with tcp://) a framed TCP stream.
func Dial(ctx context.Context, addr string, opts Options) (Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return NewWebSocketConn(ws, opts), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(addr, "tcp://"))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamConn(conn, opts), nil
}
