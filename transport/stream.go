package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"winerp/codec"
	"winerp/message"
	"winerp/protocol"
)

// StreamConn frames envelopes over a net.Conn.
type StreamConn struct {
	conn    net.Conn
	codec   codec.Codec
	idle    time.Duration
	sending sync.Mutex // serializes frame writes; interleaved frames corrupt the stream

	closeOnce sync.Once
	done      chan struct{}
}

// NewStreamConn wraps conn and starts the heartbeat loop when opts.Heartbeat is set.
func NewStreamConn(conn net.Conn, opts Options) *StreamConn {
	t := &StreamConn{
		conn:  conn,
		codec: codec.GetCodec(opts.Codec),
		idle:  opts.idle(),
		done:  make(chan struct{}),
	}
	if opts.Heartbeat > 0 {
		go t.heartbeatLoop(opts.Heartbeat)
	}
	return t
}

// Send encodes msg with the connection codec and writes one frame.
func (t *StreamConn) Send(msg *message.Message) error {
	body, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		FrameType: protocol.FrameMessage,
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	return t.write(&header, body)
}

// write sends one frame under the write deadline. Callers hold t.sending. A
// failed write may leave a partial frame on the wire, so the connection is closed.
func (t *StreamConn) write(header *protocol.Header, body []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := protocol.Encode(t.conn, header, body); err != nil {
		t.Close()
		return err
	}
	return nil
}

// Recv returns the next envelope. Heartbeat frames are consumed silently; they only
// push the idle deadline forward. The body is decoded with the codec named in its
// header, so the two ends need not agree on a codec.
func (t *StreamConn) Recv() (*message.Message, error) {
	for {
		if t.idle > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.idle))
		}
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			return nil, err
		}
		if header.FrameType == protocol.FrameHeartbeat {
			continue
		}

		msg := &message.Message{}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	}
}

func (t *StreamConn) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *StreamConn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// heartbeatLoop writes an empty heartbeat frame every interval until the
// connection closes or a write fails.
func (t *StreamConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	header := &protocol.Header{
		CodecType: byte(t.codec.Type()),
		FrameType: protocol.FrameHeartbeat,
	}
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		err := t.write(header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
