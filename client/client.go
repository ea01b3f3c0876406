// Package client is the peer side of winerp: it connects to a broker under a
// unique name, serves registered routes and sends requests to other peers.
//
// Connection states:
//
//	disconnected → connecting → authenticating → ready → disconnected
//
// A lost connection fails every pending request. With Reconnect set the client
// dials again in the background; requests are never retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"winerp/codec"
	"winerp/loadbalance"
	"winerp/message"
	"winerp/middleware"
	"winerp/registry"
	"winerp/transport"
)

const (
	DefaultRequestTimeout    = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReconnectInterval = 2 * time.Second
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options configure a Client.
type Options struct {
	// Name is the identity this peer registers under. Required.
	Name string
	// Addr is the broker address (host:port, tcp://host:port or ws://host/path).
	// When empty the broker is picked from Registry with Balancer.
	Addr   string
	Secret string
	Codec  codec.CodecType

	// RequestTimeout applies when Request is called without a timeout.
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	// Heartbeat is the keepalive interval. Zero disables heartbeats.
	Heartbeat time.Duration

	Reconnect         bool
	ReconnectInterval time.Duration

	Registry registry.Registry
	Service  string
	Balancer loadbalance.Balancer

	Logger *zap.Logger
}

type Client struct {
	opts    Options
	logger  *zap.Logger
	routes  *routeTable
	pending pendingTable

	ctx      context.Context // cancelled by Close; parent of handler contexts
	cancel   context.CancelFunc
	handlers sync.WaitGroup

	state atomic.Int32

	mu          sync.Mutex
	conn        transport.Conn
	done        chan struct{} // closed when conn's read loop exits
	closed      bool
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
}

// NewClient validates opts and returns a disconnected client. Call Start to connect.
func NewClient(opts Options) (*Client, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: empty client name", ErrInvalidArgument)
	}
	if opts.Addr == "" && opts.Registry == nil {
		return nil, fmt.Errorf("%w: no broker address or registry", ErrInvalidArgument)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Service == "" {
		opts.Service = registry.DefaultService
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{
		opts:   opts,
		logger: opts.Logger.With(zap.String("peer", opts.Name)),
		routes: newRouteTable(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Name returns the identity of this client.
func (c *Client) Name() string { return c.opts.Name }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// Done returns a channel closed when the current connection is lost. If the
// client is not connected the channel is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Use adds a middleware around route handlers. It takes effect on the next Start.
func (c *Client) Use(mw middleware.Middleware) {
	c.mu.Lock()
	c.middlewares = append(c.middlewares, mw)
	c.mu.Unlock()
}

// RegisterRoute binds h to name. An empty name is taken from h's Name method
// or from the function name of a HandlerFunc.
func (c *Client) RegisterRoute(name string, h Handler) error {
	if isNilHandler(h) {
		return ErrInvalidRouteType
	}
	if name == "" {
		name = handlerName(h)
	}
	if name == "" {
		return fmt.Errorf("%w: cannot derive a route name, pass one explicitly", ErrInvalidArgument)
	}
	return c.routes.add(name, h)
}

// HandleFunc registers fn under name.
func (c *Client) HandleFunc(name string, fn func(ctx context.Context, payload message.Payload) (message.Payload, error)) error {
	if fn == nil {
		return ErrInvalidRouteType
	}
	return c.RegisterRoute(name, HandlerFunc(fn))
}

// Start connects and authenticates, returning once the client is ready.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.State() {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateAuthenticating:
		c.mu.Unlock()
		return errors.New("winerp: connect already in progress")
	}
	c.setState(StateConnecting)
	// Recover runs outermost for middleware panics and innermost for handler
	// panics, which may happen on a goroutine a middleware started.
	recoverer := middleware.RecoverMiddleware(c.logger)
	chain := append([]middleware.Middleware{recoverer}, c.middlewares...)
	c.handler = middleware.Chain(chain...)(recoverer(c.serveRoute))
	c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.setState(StateDisconnected)
		return ErrClosed
	}
	done := make(chan struct{})
	c.conn, c.done = conn, done
	handler := c.handler
	c.setState(StateReady)
	c.mu.Unlock()

	c.logger.Info("connected to broker", zap.Stringer("remote", conn.RemoteAddr()))
	go c.readLoop(conn, done, handler)
	return nil
}

func (c *Client) brokerAddr(ctx context.Context) (string, error) {
	if c.opts.Addr != "" {
		return c.opts.Addr, nil
	}
	instances, err := c.opts.Registry.Discover(ctx, c.opts.Service)
	if err != nil {
		return "", fmt.Errorf("discover brokers: %w", err)
	}
	inst, err := c.opts.Balancer.Pick(instances)
	if err != nil {
		return "", fmt.Errorf("pick broker: %w", err)
	}
	return inst.Addr, nil
}

func (c *Client) connect(ctx context.Context) (transport.Conn, error) {
	addr, err := c.brokerAddr(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, addr, transport.Options{Codec: c.opts.Codec, Heartbeat: c.opts.Heartbeat})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c.setState(StateAuthenticating)
	hello := &message.Message{
		ID:     message.NewID(),
		Kind:   message.KindInfo,
		Route:  message.RouteIdentify,
		Source: c.opts.Name,
	}
	if c.opts.Secret != "" {
		hello.Payload = message.Payload{"secret": c.opts.Secret}
	}
	if err := conn.Send(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send identify: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	stop := context.AfterFunc(hctx, func() { conn.Close() })
	reply, err := conn.Recv()
	if !stop() {
		return nil, fmt.Errorf("handshake: %w", hctx.Err())
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	switch {
	case reply.Kind == message.KindError:
		conn.Close()
		return nil, reply.Err()
	case reply.Kind != message.KindInfo || reply.Route != message.RouteIdentify:
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake reply %s %q", message.ErrBadRequest, reply.Kind, reply.Route)
	}
	return conn, nil
}

func (c *Client) readLoop(conn transport.Conn, done chan struct{}, handler middleware.HandlerFunc) {
	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrMalformed) {
				c.logger.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			c.disconnected(conn, done, err)
			return
		}
		c.dispatch(conn, msg, handler)
	}
}

func (c *Client) dispatch(conn transport.Conn, msg *message.Message, handler middleware.HandlerFunc) {
	switch msg.Kind {
	case message.KindRequest:
		if msg.Destination != c.opts.Name {
			c.logger.Warn("request for another peer", zap.String("destination", msg.Destination), zap.String("id", msg.ID))
			return
		}
		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()
			reply := handler(c.ctx, msg)
			if reply == nil {
				return
			}
			if err := conn.Send(reply); err != nil {
				c.logger.Info("send reply failed", zap.String("route", msg.Route), zap.String("id", msg.ID), zap.Error(err))
			}
		}()
	case message.KindResponse, message.KindError:
		if !c.pending.resolve(msg) {
			c.logger.Warn("dropping reply", zap.String("id", msg.ID), zap.String("source", msg.Source), zap.Error(ErrOrphanResponse))
		}
	default:
		c.logger.Debug("info message", zap.String("route", msg.Route))
	}
}

// serveRoute is the innermost handler of the middleware chain.
func (c *Client) serveRoute(ctx context.Context, req *message.Message) *message.Message {
	h, ok := c.routes.lookup(req.Route)
	if !ok {
		return req.Fail(message.CodeRouteNotFound, fmt.Sprintf("%s has no route %q", c.opts.Name, req.Route))
	}
	payload, err := h.Serve(ctx, req.Payload)
	if err != nil {
		return req.Fail(message.CodeOf(err), err.Error())
	}
	return req.Reply(payload)
}

func (c *Client) disconnected(conn transport.Conn, done chan struct{}, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.setState(StateDisconnected)
	}
	close(done)
	closing := c.closed
	c.mu.Unlock()

	failure := fmt.Errorf("%w: connection lost: %v", ErrNotReady, cause)
	if closing {
		failure = ErrClosed
	}
	if n := c.pending.failAll(failure); n > 0 {
		c.logger.Info("failed pending requests", zap.Int("count", n))
	}
	if closing {
		return
	}
	c.logger.Warn("disconnected from broker", zap.Error(cause))
	if c.opts.Reconnect {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	timer := time.NewTimer(c.opts.ReconnectInterval)
	defer timer.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}
		err := c.Start(c.ctx)
		if err == nil || errors.Is(err, ErrClosed) {
			return
		}
		c.logger.Info("reconnect failed", zap.Error(err))
		timer.Reset(c.opts.ReconnectInterval)
	}
}

// Request sends data to route on destination and waits for the reply.
// A timeout of zero or less uses Options.RequestTimeout.
//
// Errors: ErrInvalidArgument, ErrNotReady, ErrRequestTimeout, the caller's
// ctx.Err(), or a *message.RemoteError (unreachable, route_not_found,
// handler_failed, ...) that unwraps to the matching message sentinel.
func (c *Client) Request(ctx context.Context, route, destination string, timeout time.Duration, data message.Payload) (message.Payload, error) {
	if route == "" || destination == "" {
		return nil, fmt.Errorf("%w: route and destination are required", ErrInvalidArgument)
	}
	return c.call(ctx, message.NewRequest(c.opts.Name, destination, route, data), timeout)
}

// Peers asks the broker for the names of all connected peers, this one included.
func (c *Client) Peers(ctx context.Context) ([]string, error) {
	payload, err := c.call(ctx, c.controlRequest(message.RoutePeers), 0)
	if err != nil {
		return nil, err
	}
	raw, _ := payload["peers"].([]any)
	peers := make([]string, 0, len(raw))
	for _, p := range raw {
		if name, ok := p.(string); ok {
			peers = append(peers, name)
		}
	}
	return peers, nil
}

// Ping measures the round trip to the broker.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.call(ctx, c.controlRequest(message.RoutePing), 0); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Client) controlRequest(route string) *message.Message {
	return &message.Message{ID: message.NewID(), Kind: message.KindRequest, Source: c.opts.Name, Route: route}
}

func (c *Client) call(ctx context.Context, req *message.Message, timeout time.Duration) (message.Payload, error) {
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}

	c.mu.Lock()
	conn, done := c.conn, c.done
	ready := conn != nil && c.State() == StateReady
	c.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	wait, ok := c.pending.add(req.ID, time.Now().Add(timeout))
	if !ok {
		return nil, fmt.Errorf("%w: duplicate request id %s", ErrInvalidArgument, req.ID)
	}
	// The connection may have dropped after the ready check; failAll has
	// already run in that case and would never see this entry.
	select {
	case <-done:
		return c.abandon(req.ID, wait, ErrNotReady)
	default:
	}

	// A broker that stops reading can block the write until the transport
	// write deadline, so the send runs aside and the wait below bounds it.
	sent := make(chan error, 1)
	go func() { sent <- conn.Send(req) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case err := <-sent:
			sent = nil
			if err != nil {
				return c.abandon(req.ID, wait, fmt.Errorf("%w: %v", ErrNotReady, err))
			}
		case res := <-wait:
			return res.payload, res.err
		case <-timer.C:
			return c.abandon(req.ID, wait, fmt.Errorf("%w: %s on %q after %s", ErrRequestTimeout, req.Route, req.Destination, timeout))
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrRequestTimeout, err)
			}
			return c.abandon(req.ID, wait, err)
		}
	}
}

// abandon fails the call with err if it still owns the pending entry.
// Otherwise a reply or failure won the race and its result is already queued.
func (c *Client) abandon(id string, wait <-chan result, err error) (message.Payload, error) {
	if c.pending.remove(id) {
		return nil, err
	}
	res := <-wait
	return res.payload, res.err
}

// PendingCount returns the number of requests waiting for a reply.
func (c *Client) PendingCount() int {
	return c.pending.len()
}

// Close disconnects, fails pending requests with ErrClosed and waits for
// running handlers to return.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		<-done
	}
	c.cancel()
	c.pending.failAll(ErrClosed)
	c.handlers.Wait()
	c.setState(StateDisconnected)
	c.logger.Info("client closed")
	return nil
}
