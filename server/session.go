package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"winerp/message"
	"winerp/transport"
)

type inflight struct {
	source string
	at     time.Time
}

// session is one authenticated peer connection.
//
// Outbound messages go through a bounded queue drained by writeLoop, so a
// forward never blocks on a slow or dead destination. The session also tracks
// requests forwarded to it, keyed by id, until their reply comes back; on
// disconnect the remaining callers are told the destination is gone.
type session struct {
	name    string
	conn    transport.Conn
	limiter *rate.Limiter // nil when forwarding is unlimited
	queue   chan *message.Message
	done    chan struct{}
	ttl     time.Duration

	mu        sync.Mutex
	closed    bool
	inflight  map[string]inflight
	lastSweep time.Time
}

func newSession(name string, conn transport.Conn, queueSize int, ttl time.Duration, limiter *rate.Limiter) *session {
	return &session{
		name:      name,
		conn:      conn,
		limiter:   limiter,
		queue:     make(chan *message.Message, queueSize),
		done:      make(chan struct{}),
		ttl:       ttl,
		inflight:  make(map[string]inflight),
		lastSweep: time.Now(),
	}
}

// deliver queues msg without blocking. Requests are tracked in the same critical
// section, so close either sees the entry or deliver sees the session closed.
func (s *session) deliver(msg *message.Message, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	track := msg.Kind == message.KindRequest && msg.ID != ""
	if track {
		s.sweepLocked()
		s.inflight[msg.ID] = inflight{source: source, at: time.Now()}
	}
	select {
	case s.queue <- msg:
		return true
	default:
		if track {
			delete(s.inflight, msg.ID)
		}
		return false
	}
}

// settle forgets a request this session has answered.
func (s *session) settle(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// sweepLocked drops entries whose caller has certainly given up.
func (s *session) sweepLocked() {
	now := time.Now()
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for id, entry := range s.inflight {
		if now.Sub(entry.at) > s.ttl {
			delete(s.inflight, id)
		}
	}
}

// close stops the writer and returns the unanswered requests (id -> source).
func (s *session) close() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	pending := make(map[string]string, len(s.inflight))
	for id, entry := range s.inflight {
		pending[id] = entry.source
	}
	s.inflight = nil
	return pending
}

func (s *session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// writeLoop is the only writer of conn after the handshake. Messages still
// queued when the session closes are dropped.
func (s *session) writeLoop(logger *zap.Logger) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.conn.Send(msg); err != nil {
				logger.Info("write failed, closing session", zap.String("peer", s.name), zap.Error(err))
				s.conn.Close()
				return
			}
		}
	}
}
