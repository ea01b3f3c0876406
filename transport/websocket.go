package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"winerp/codec"
	"winerp/message"
)

// WebSocketConn carries one envelope per WebSocket message. Keepalive uses
// WebSocket ping/pong control frames instead of heartbeat frames.
type WebSocketConn struct {
	ws      *websocket.Conn
	codec   codec.Codec
	idle    time.Duration
	sending sync.Mutex // gorilla allows a single concurrent data writer

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(ws *websocket.Conn, opts Options) *WebSocketConn {
	t := &WebSocketConn{
		ws:    ws,
		codec: codec.GetCodec(opts.Codec),
		idle:  opts.idle(),
		done:  make(chan struct{}),
	}
	if t.idle > 0 {
		ws.SetReadDeadline(time.Now().Add(t.idle))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(t.idle))
		})
	}
	if opts.Heartbeat > 0 {
		go t.pingLoop(opts.Heartbeat)
	}
	return t
}

func (t *WebSocketConn) Send(msg *message.Message) error {
	body, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	mt := websocket.TextMessage
	if t.codec.Type() == codec.CodecTypeMsgpack {
		mt = websocket.BinaryMessage
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return t.ws.WriteMessage(mt, body)
}

func (t *WebSocketConn) Recv() (*message.Message, error) {
	mt, data, err := t.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if t.idle > 0 {
		t.ws.SetReadDeadline(time.Now().Add(t.idle))
	}

	ct := codec.CodecTypeJSON
	if mt == websocket.BinaryMessage {
		ct = codec.CodecTypeMsgpack
	}
	msg := &message.Message{}
	if err := codec.GetCodec(ct).Decode(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func (t *WebSocketConn) RemoteAddr() net.Addr {
	return t.ws.RemoteAddr()
}

func (t *WebSocketConn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.ws.Close()
	})
	return err
}

func (t *WebSocketConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		if err := t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}
