// Package server implements the broker: it authenticates peers, keeps the
// directory of connected identities, and forwards messages between them.
//
// Connection lifecycle:
//
//	Accept conn → handshake (identify + secret) → register name
//	  → read loop: stamp Source, then forward to the destination's queue or answer a control route
//	  → on disconnect: drop the name, fail requests still in flight to this peer
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"winerp/codec"
	"winerp/message"
	"winerp/registry"
	"winerp/transport"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultQueueSize        = 256
	DefaultInflightTTL      = 10 * time.Minute
	DefaultRegistryTTL      = 10 // seconds
)

// Options configure a Server. Zero values pick the defaults above.
type Options struct {
	Codec            codec.CodecType
	Heartbeat        time.Duration
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	QueueSize        int
	InflightTTL      time.Duration

	// ForwardRate limits messages per second forwarded from one session. Zero disables it.
	ForwardRate  float64
	ForwardBurst int

	// Authenticator defaults to AllowAll.
	Authenticator Authenticator

	// Registry, when set, receives AdvertiseAddr under Service once Serve starts.
	Registry      registry.Registry
	Service       string
	AdvertiseAddr string
	RegistryTTL   int64

	Logger *zap.Logger
}

// Server is the broker.
type Server struct {
	opts     Options
	logger   *zap.Logger
	dir      *directory
	upgrader websocket.Upgrader

	shutdown  atomic.Bool
	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[transport.Conn]struct{}
	wg        sync.WaitGroup // one per connection goroutine

	advertise sync.Once
	regCtx    context.Context
	regCancel context.CancelFunc
}

// NewServer creates a broker with no listeners.
func NewServer(opts Options) *Server {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.InflightTTL <= 0 {
		opts.InflightTTL = DefaultInflightTTL
	}
	if opts.RegistryTTL <= 0 {
		opts.RegistryTTL = DefaultRegistryTTL
	}
	if opts.Service == "" {
		opts.Service = registry.DefaultService
	}
	if opts.Authenticator == nil {
		opts.Authenticator = AllowAll{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		dir:       newDirectory(),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[transport.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.regCtx, s.regCancel = context.WithCancel(context.Background())
	return s
}

func (s *Server) connOptions() transport.Options {
	return transport.Options{
		Codec:       s.opts.Codec,
		Heartbeat:   s.opts.Heartbeat,
		IdleTimeout: s.opts.IdleTimeout,
	}
}

// ListenAndServe listens on the TCP address and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts framed TCP connections on ln until Shutdown. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		ln.Close()
		return nil
	}
	defer s.untrackListener(ln)

	s.logger.Info("broker listening", zap.String("addr", ln.Addr().String()))
	s.register()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener; that error is expected.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		c := transport.NewStreamConn(conn, s.connOptions())
		if !s.trackConn(c) {
			c.Close()
			continue
		}
		go s.handleConn(c)
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the session on it
// until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		http.Error(w, "broker shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := transport.NewWebSocketConn(ws, s.connOptions())
	if !s.trackConn(c) {
		c.Close()
		return
	}
	s.handleConn(c)
}

func (s *Server) register() {
	if s.opts.Registry == nil || s.opts.AdvertiseAddr == "" {
		return
	}
	s.advertise.Do(func() {
		inst := registry.ServiceInstance{Addr: s.opts.AdvertiseAddr, Weight: 1}
		if err := s.opts.Registry.Register(s.regCtx, s.opts.Service, inst, s.opts.RegistryTTL); err != nil {
			s.logger.Warn("registry register failed", zap.String("service", s.opts.Service), zap.Error(err))
			return
		}
		s.logger.Info("registered broker", zap.String("service", s.opts.Service), zap.String("addr", inst.Addr))
	})
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

// trackConn adds the connection to the shutdown set. wg.Add happens under mu
// and before the shutdown flag flips, so it never races with wg.Wait.
func (s *Server) trackConn(c transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(c transport.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleConn(conn transport.Conn) {
	defer s.untrackConn(conn)
	defer conn.Close()

	hello, err := s.handshake(conn)
	if err != nil {
		s.logger.Info("handshake failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}

	var limiter *rate.Limiter
	if s.opts.ForwardRate > 0 {
		burst := s.opts.ForwardBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.ForwardRate), burst)
	}
	sess := newSession(hello.Source, conn, s.opts.QueueSize, s.opts.InflightTTL, limiter)
	// ready must be first in the queue, ahead of anything forwarded once the name is visible.
	sess.deliver(&message.Message{
		ID:          hello.ID,
		Kind:        message.KindInfo,
		Route:       message.RouteIdentify,
		Destination: sess.name,
		Payload:     message.Payload{"status": "ready"},
	}, "")
	if err := s.dir.register(sess); err != nil {
		s.reject(conn, hello, message.CodeDuplicateName, err)
		s.logger.Info("identity rejected", zap.String("peer", hello.Source), zap.Error(err))
		return
	}
	defer s.drop(sess)
	go sess.writeLoop(s.logger)

	s.logger.Info("peer connected", zap.String("peer", sess.name), zap.Stringer("remote", conn.RemoteAddr()))
	s.readLoop(sess)
}

// handshake reads the identify message. The connection is closed if it does
// not arrive within HandshakeTimeout.
func (s *Server) handshake(conn transport.Conn) (*message.Message, error) {
	timer := time.AfterFunc(s.opts.HandshakeTimeout, func() { conn.Close() })
	hello, err := conn.Recv()
	if !timer.Stop() {
		return nil, errors.New("handshake timed out")
	}
	if err != nil {
		return nil, fmt.Errorf("read identify: %w", err)
	}
	if hello.Kind != message.KindInfo || hello.Route != message.RouteIdentify || hello.Source == "" {
		err := fmt.Errorf("%w: expected identify message, got %s %q", message.ErrBadRequest, hello.Kind, hello.Route)
		s.reject(conn, hello, message.CodeBadRequest, err)
		return nil, err
	}
	secret, _ := hello.Payload["secret"].(string)
	if err := s.opts.Authenticator.Authenticate(hello.Source, secret); err != nil {
		s.reject(conn, hello, message.CodeUnauthorized, err)
		return nil, err
	}
	return hello, nil
}

// reject answers a failed handshake. Called before the writer goroutine exists.
func (s *Server) reject(conn transport.Conn, hello *message.Message, code message.ErrorCode, err error) {
	msg := &message.Message{
		ID:          hello.ID,
		Kind:        message.KindError,
		Route:       message.RouteIdentify,
		Destination: hello.Source,
		Error:       &message.ErrorDetail{Code: code, Message: err.Error()},
	}
	if err := conn.Send(msg); err != nil {
		s.logger.Debug("send handshake rejection", zap.Error(err))
	}
}

func (s *Server) readLoop(sess *session) {
	for {
		msg, err := sess.conn.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrMalformed) {
				s.logger.Warn("dropping malformed message", zap.String("peer", sess.name), zap.Error(err))
				continue
			}
			s.logger.Info("peer disconnected", zap.String("peer", sess.name), zap.Error(err))
			return
		}
		s.route(sess, msg)
	}
}

// route handles one inbound message from an authenticated session.
func (s *Server) route(src *session, msg *message.Message) {
	// Peers cannot spoof another identity.
	msg.Source = src.name

	if !msg.Kind.Valid() {
		s.logger.Warn("dropping message with unknown kind", zap.String("peer", src.name), zap.String("kind", string(msg.Kind)))
		return
	}
	if msg.Kind == message.KindInfo {
		s.logger.Debug("info message", zap.String("peer", src.name), zap.String("route", msg.Route))
		return
	}
	if msg.Destination == "" {
		if msg.Kind == message.KindRequest {
			s.control(src, msg)
		}
		return
	}
	s.forward(src, msg)
}

func (s *Server) forward(src *session, msg *message.Message) {
	if msg.IsReply() {
		src.settle(msg.ID)
	}
	if src.limiter != nil && !src.limiter.Allow() {
		s.bounce(src, msg, message.CodeRateLimited, "forward rate exceeded")
		return
	}
	dst, ok := s.dir.lookup(msg.Destination)
	if !ok {
		s.bounce(src, msg, message.CodeUnreachable, fmt.Sprintf("%q is not connected", msg.Destination))
		return
	}
	if !dst.deliver(msg, src.name) {
		s.bounce(src, msg, message.CodeUnreachable, fmt.Sprintf("%q cannot accept messages", msg.Destination))
	}
}

// bounce tells the sender its request was not delivered. Undeliverable replies
// are dropped: their caller is gone.
func (s *Server) bounce(src *session, msg *message.Message, code message.ErrorCode, reason string) {
	if msg.Kind != message.KindRequest {
		s.logger.Debug("dropping undeliverable reply",
			zap.String("from", src.name), zap.String("to", msg.Destination), zap.String("id", msg.ID))
		return
	}
	s.logger.Debug("bouncing request", zap.String("from", src.name), zap.String("to", msg.Destination),
		zap.String("code", string(code)))
	src.deliver(msg.Fail(code, reason), "")
}

// drop removes a disconnected session and fails the requests it never answered.
func (s *Server) drop(sess *session) {
	s.dir.remove(sess)
	stranded := sess.close()
	for id, source := range stranded {
		origin, ok := s.dir.lookup(source)
		if !ok {
			continue
		}
		origin.deliver(&message.Message{
			ID:          id,
			Kind:        message.KindError,
			Source:      sess.name,
			Destination: source,
			Error: &message.ErrorDetail{
				Code:    message.CodeUnreachable,
				Message: fmt.Sprintf("%q disconnected before replying", sess.name),
			},
		}, "")
	}
	if len(stranded) > 0 {
		s.logger.Info("failed stranded requests", zap.String("peer", sess.name), zap.Int("count", len(stranded)))
	}
}

// Peers returns the sorted names of connected peers.
func (s *Server) Peers() []string {
	return s.dir.names()
}

// Shutdown deregisters from the registry, stops the listeners, closes every
// connection and waits for their goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Registry != nil && s.opts.AdvertiseAddr != "" {
		if err := s.opts.Registry.Deregister(ctx, s.opts.Service, s.opts.AdvertiseAddr); err != nil {
			s.logger.Warn("registry deregister failed", zap.Error(err))
		}
	}
	s.regCancel()

	s.mu.Lock()
	s.shutdown.Store(true)
	for ln := range s.listeners {
		ln.Close()
	}
	conns := make([]transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server: waiting for connections: %w", ctx.Err())
	}
}
